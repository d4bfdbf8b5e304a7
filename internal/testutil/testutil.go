package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/usermgmt/usermgmt/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// TruncateTables empties users and api_keys. The schema must already be migrated.
func TruncateTables(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE api_keys, users"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test user with sensible defaults.
// The password hash is a placeholder; hash a real password when login matters.
func NewTestUser(t testing.TB, username string) *model.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		FullName:     model.StringPtr("Test " + username),
		Email:        username + "@example.com",
		Language:     model.StringPtr("en"),
		Culture:      model.StringPtr("en-US"),
		PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceholderpl",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAPIKey creates a test API key issued at createdAt.
func NewTestAPIKey(t testing.TB, userID string, createdAt time.Time) *model.APIKey {
	t.Helper()
	return &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Key:       uuid.NewString(),
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
}

// ============================================================================
// Clock
// ============================================================================

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock fixed at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
