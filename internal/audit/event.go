// Package audit records authentication and account events on a Redis stream.
package audit

import (
	"errors"
	"fmt"
	"time"
)

// Event types.
const (
	LoginSucceeded = "login.succeeded"
	LoginFailed    = "login.failed"
	LoggedOut      = "logout"
	UserCreated    = "user.created"
	UserUpdated    = "user.updated"
	UserDeleted    = "user.deleted"
)

var knownTypes = map[string]bool{
	LoginSucceeded: true,
	LoginFailed:    true,
	LoggedOut:      true,
	UserCreated:    true,
	UserUpdated:    true,
	UserDeleted:    true,
}

const maxUsernameLength = 100

// Event is the compact payload stored in the stream.
// Key values and passwords never appear here.
type Event struct {
	Type     string `json:"type"`
	UserID   string `json:"uid,omitempty"`
	Username string `json:"u,omitempty"`
	KeyID    string `json:"kid,omitempty"`
	Reason   string `json:"r,omitempty"`
	At       int64  `json:"t"` // Unix milliseconds
}

// NewEvent stamps an event of the given type at now.
func NewEvent(eventType string, now time.Time) Event {
	return Event{Type: eventType, At: now.UnixMilli()}
}

// Time returns At as a UTC time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.At).UTC()
}

// Validate checks that an event is well formed before it is published.
func (e Event) Validate() error {
	if e.Type == "" {
		return errors.New("type is required")
	}
	if !knownTypes[e.Type] {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.At <= 0 {
		return errors.New("t must be set")
	}
	if e.UserID == "" && e.Username == "" {
		return errors.New("uid or u is required")
	}
	if len(e.Username) > maxUsernameLength {
		return errors.New("u too long")
	}
	return nil
}

// TruncateUsername caps a caller-supplied username at the stored maximum.
func TruncateUsername(username string) string {
	if len(username) > maxUsernameLength {
		return username[:maxUsernameLength]
	}
	return username
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(event Event)
}

// Nop discards every event.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(Event) {}
