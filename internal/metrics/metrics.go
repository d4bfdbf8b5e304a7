// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Login outcomes.
const (
	LoginSuccess         = "success"
	LoginUserNotFound    = "user_not_found"
	LoginInvalidPassword = "invalid_password"
	LoginError           = "error"
)

// Key validation outcomes.
const (
	KeyValid   = "valid"
	KeyMissing = "missing"
	KeyInvalid = "invalid"
	KeyExpired = "expired"
)

// Audit event publish outcomes.
const (
	AuditPublished = "published"
	AuditDropped   = "dropped"
)

// User operations.
const (
	UserCreated = "created"
	UserUpdated = "updated"
	UserDeleted = "deleted"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// API key lifecycle
	IncLogin(result string)
	IncKeyValidation(result string)
	IncLogout(found bool)
	ObserveSweep(removed int64, duration time.Duration)

	// User management
	IncUserOperation(op string)

	// Rate limiting
	IncRateLimited(scope string)

	// Audit stream
	IncAuditEvent(result string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
