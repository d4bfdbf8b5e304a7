package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/usermgmt/usermgmt/internal/audit"
	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/metrics"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

func newUserService(t *testing.T) (*UserService, *testutil.MemStore, *metrics.InMemoryRecorder) {
	t.Helper()
	store := testutil.NewMemStore()
	recorder := metrics.NewInMemory()
	svc := NewUserService(
		store,
		auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost),
		recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, store, recorder
}

func validCreateInput(username string) CreateUserInput {
	return CreateUserInput{
		Username:     username,
		FullName:     "Jane Doe",
		Email:        username + "@example.com",
		MobileNumber: "5550100",
		Language:     "en",
		Culture:      "en-GB",
		Password:     "Secret123",
	}
}

func TestUserService_CreateAndGet(t *testing.T) {
	svc, _, recorder := newUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateInput("jane"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create should assign an ID")
	}
	if created.PasswordHash == "" || created.PasswordHash == "Secret123" {
		t.Error("password must be stored hashed")
	}

	byID, err := svc.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	byName, err := svc.GetByUsername(ctx, "jane")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if byID.ID != byName.ID || *byID.Culture != "en-GB" || *byName.FullName != "Jane Doe" {
		t.Errorf("lookups disagree: %+v vs %+v", byID, byName)
	}

	data, _ := json.Marshal(byID.ToResponse())
	if strings.Contains(string(data), byID.PasswordHash) || strings.Contains(string(data), "Secret123") {
		t.Errorf("password material leaked: %s", data)
	}

	hasher := auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	if !hasher.Verify(byID.PasswordHash, "Secret123") {
		t.Error("stored hash should verify the original password")
	}
	if hasher.Verify(byID.PasswordHash, "Secret124") {
		t.Error("stored hash should not verify a different password")
	}

	if recorder.Snapshot().UserOperations[metrics.UserCreated] != 1 {
		t.Error("create not recorded")
	}
}

func TestUserService_Create_EmptyOptionalFieldsAreNull(t *testing.T) {
	svc, _, _ := newUserService(t)

	user, err := svc.Create(context.Background(), CreateUserInput{
		Username: "minimal",
		Email:    "minimal@example.com",
		Password: "Secret123",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.FullName != nil || user.MobileNumber != nil || user.Language != nil || user.Culture != nil {
		t.Errorf("optional fields should be nil: %+v", user)
	}
}

func TestUserService_Create_DuplicateUsername(t *testing.T) {
	svc, store, _ := newUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validCreateInput("dup")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := svc.Create(ctx, validCreateInput("dup"))
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Create duplicate error = %v, want ErrUsernameTaken", err)
	}

	count, _ := store.CountUsers(ctx)
	if count != 1 {
		t.Errorf("user count = %d, want 1", count)
	}
}

func TestUserService_Create_PasswordPolicy(t *testing.T) {
	svc, _, _ := newUserService(t)

	for _, pw := range []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere", ""} {
		input := validCreateInput("weak")
		input.Password = pw
		if _, err := svc.Create(context.Background(), input); !errors.Is(err, auth.ErrInvalidPassword) {
			t.Errorf("Create with password %q error = %v, want ErrInvalidPassword", pw, err)
		}
	}
}

func TestUserService_Create_StoreError(t *testing.T) {
	svc, store, _ := newUserService(t)
	store.SetError(errors.New("db down"))

	_, err := svc.Create(context.Background(), validCreateInput("jane"))
	if err == nil || errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Create error = %v, want wrapped store error", err)
	}
}

func TestUserService_NotFound(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	if _, err := svc.GetByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.GetByUsername(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.Update(ctx, "missing", UpdateUserInput{Username: "x", Email: "x@example.com"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update error = %v, want ErrUserNotFound", err)
	}
	if err := svc.Delete(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete error = %v, want ErrUserNotFound", err)
	}
}

func TestUserService_Update_PartialFields(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateInput("jane"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	oldHash := created.PasswordHash

	empty := ""
	updated, err := svc.Update(ctx, created.ID, UpdateUserInput{
		Username:     "jane",
		Email:        "new@example.com",
		FullName:     nil,
		MobileNumber: &empty,
		Language:     model.StringPtr("fr"),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.Email != "new@example.com" {
		t.Errorf("Email = %q, want overwrite", updated.Email)
	}
	if *updated.FullName != "Jane Doe" || *updated.MobileNumber != "5550100" || *updated.Culture != "en-GB" {
		t.Errorf("nil or empty fields should be preserved: %+v", updated)
	}
	if *updated.Language != "fr" {
		t.Errorf("Language = %q, want fr", *updated.Language)
	}
	if updated.PasswordHash != oldHash {
		t.Error("empty password must keep the stored hash")
	}

	stored, _ := svc.GetByID(ctx, created.ID)
	if stored.Email != "new@example.com" || *stored.Language != "fr" {
		t.Errorf("update not persisted: %+v", stored)
	}
}

func TestUserService_Update_Password(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	hasher := auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)

	created, _ := svc.Create(ctx, validCreateInput("jane"))

	updated, err := svc.Update(ctx, created.ID, UpdateUserInput{
		Username: "jane",
		Email:    created.Email,
		Password: "Changed123",
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !hasher.Verify(updated.PasswordHash, "Changed123") || hasher.Verify(updated.PasswordHash, "Secret123") {
		t.Error("password should be re-hashed to the new value")
	}

	_, err = svc.Update(ctx, created.ID, UpdateUserInput{Username: "jane", Email: created.Email, Password: "weak"})
	if !errors.Is(err, auth.ErrInvalidPassword) {
		t.Errorf("weak password error = %v, want ErrInvalidPassword", err)
	}
}

func TestUserService_Update_UsernameCollision(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validCreateInput("alice")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	bob, err := svc.Create(ctx, validCreateInput("bob"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = svc.Update(ctx, bob.ID, UpdateUserInput{Username: "alice", Email: bob.Email})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Update error = %v, want ErrUsernameTaken", err)
	}
}

func TestUserService_List(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc.now = clock.Now

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("empty store should list no users, got %d", len(users))
	}

	for _, name := range []string{"zed", "amy"} {
		if _, err := svc.Create(ctx, validCreateInput(name)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		clock.Advance(time.Second)
	}

	users, err = svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 2 || users[0].Username != "zed" || users[1].Username != "amy" {
		t.Errorf("List should be ordered by creation time, got %v", usernames(users))
	}
}

func TestUserService_SeedDefaults(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	seeded, err := svc.SeedDefaults(ctx, "TestPass1")
	if err != nil {
		t.Fatalf("SeedDefaults failed: %v", err)
	}
	if !seeded {
		t.Fatal("empty store should be seeded")
	}

	admin, err := svc.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("admin not seeded: %v", err)
	}
	if *admin.FullName != "Admin" || admin.Email != "admin@example.com" || *admin.MobileNumber != "123456789" {
		t.Errorf("unexpected admin: %+v", admin)
	}
	test, err := svc.GetByUsername(ctx, "test")
	if err != nil {
		t.Fatalf("test user not seeded: %v", err)
	}
	if *test.FullName != "Test User" || *test.Culture != "en-US" {
		t.Errorf("unexpected test user: %+v", test)
	}

	seeded, err = svc.SeedDefaults(ctx, "TestPass1")
	if err != nil {
		t.Fatalf("second SeedDefaults failed: %v", err)
	}
	if seeded {
		t.Error("non-empty store must not be seeded again")
	}
}

func usernames(users []*model.User) []string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	return names
}

func TestUserService_AuditEvents(t *testing.T) {
	svc, _, _ := newUserService(t)
	sink := &testutil.AuditSink{}
	WithUserAuditor(sink)(svc)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateInput("audited"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, validCreateInput("audited")); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate Create error = %v", err)
	}
	if _, err := svc.Update(ctx, created.ID, UpdateUserInput{Username: "renamed", Email: "r@example.com"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), sink.Types())
	}
	wantTypes := []string{audit.UserCreated, audit.UserUpdated, audit.UserDeleted}
	for i, e := range events {
		if e.Type != wantTypes[i] || e.UserID != created.ID {
			t.Errorf("event %d = %+v, want type %s for %s", i, e, wantTypes[i], created.ID)
		}
	}
	if events[1].Username != "renamed" {
		t.Errorf("update event username = %q, want renamed", events[1].Username)
	}
}
