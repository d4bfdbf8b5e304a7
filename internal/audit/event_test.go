package audit

import (
	"strings"
	"testing"
	"time"
)

func TestEvent_Validate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	valid := NewEvent(LoginSucceeded, now)
	valid.UserID = "u-1"

	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr string
	}{
		{"valid", func(e *Event) {}, ""},
		{"username only", func(e *Event) { e.UserID = ""; e.Username = "ghost" }, ""},
		{"missing type", func(e *Event) { e.Type = "" }, "type is required"},
		{"unknown type", func(e *Event) { e.Type = "link.clicked" }, "unknown event type"},
		{"zero time", func(e *Event) { e.At = 0 }, "t must be set"},
		{"no subject", func(e *Event) { e.UserID = "" }, "uid or u is required"},
		{"long username", func(e *Event) { e.Username = strings.Repeat("a", 101) }, "u too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEvent_Time(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.UTC)
	e := NewEvent(LoggedOut, now)
	if !e.Time().Equal(now) {
		t.Errorf("Time() = %v, want %v", e.Time(), now)
	}
}

func TestTruncateUsername(t *testing.T) {
	t.Parallel()

	if got := TruncateUsername("admin"); got != "admin" {
		t.Errorf("TruncateUsername(admin) = %q", got)
	}
	if got := TruncateUsername(strings.Repeat("x", 250)); len(got) != maxUsernameLength {
		t.Errorf("len = %d, want %d", len(got), maxUsernameLength)
	}
}
