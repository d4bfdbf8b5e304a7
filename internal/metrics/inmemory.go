package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Logins          map[string]uint64
	KeyValidations  map[string]uint64
	LogoutsFound    uint64
	LogoutsNotFound uint64
	Sweeps          uint64
	KeysSwept       int64
	SweepDurationNs int64
	UserOperations  map[string]uint64
	RateLimited     map[string]uint64
	AuditEvents     map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu              sync.Mutex
	logins          map[string]uint64
	keyValidations  map[string]uint64
	logoutsFound    uint64
	logoutsNotFound uint64
	sweeps          uint64
	keysSwept       int64
	sweepDurationNs int64
	userOperations  map[string]uint64
	rateLimited     map[string]uint64
	auditEvents     map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		logins:         make(map[string]uint64),
		keyValidations: make(map[string]uint64),
		userOperations: make(map[string]uint64),
		rateLimited:    make(map[string]uint64),
		auditEvents:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Logins:          maps.Clone(m.logins),
		KeyValidations:  maps.Clone(m.keyValidations),
		LogoutsFound:    m.logoutsFound,
		LogoutsNotFound: m.logoutsNotFound,
		Sweeps:          m.sweeps,
		KeysSwept:       m.keysSwept,
		SweepDurationNs: m.sweepDurationNs,
		UserOperations:  maps.Clone(m.userOperations),
		RateLimited:     maps.Clone(m.rateLimited),
		AuditEvents:     maps.Clone(m.auditEvents),
	}
}

// IncLogin counts a login attempt by result.
func (m *InMemoryRecorder) IncLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[result]++
}

// IncKeyValidation counts a gate decision by result.
func (m *InMemoryRecorder) IncKeyValidation(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyValidations[result]++
}

// IncLogout counts a logout by whether the key existed.
func (m *InMemoryRecorder) IncLogout(found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if found {
		m.logoutsFound++
	} else {
		m.logoutsNotFound++
	}
}

// ObserveSweep records one expiry sweep.
func (m *InMemoryRecorder) ObserveSweep(removed int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	m.keysSwept += removed
	m.sweepDurationNs += duration.Nanoseconds()
}

// IncUserOperation counts a user mutation.
func (m *InMemoryRecorder) IncUserOperation(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userOperations[op]++
}

// IncRateLimited counts a rejected request by limiter scope.
func (m *InMemoryRecorder) IncRateLimited(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited[scope]++
}

// IncAuditEvent counts an audit stream publish by result.
func (m *InMemoryRecorder) IncAuditEvent(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditEvents[result]++
}
