package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncLogin is a no-op.
func (n *NoopRecorder) IncLogin(result string) {}

// IncKeyValidation is a no-op.
func (n *NoopRecorder) IncKeyValidation(result string) {}

// IncLogout is a no-op.
func (n *NoopRecorder) IncLogout(found bool) {}

// ObserveSweep is a no-op.
func (n *NoopRecorder) ObserveSweep(removed int64, duration time.Duration) {}

// IncUserOperation is a no-op.
func (n *NoopRecorder) IncUserOperation(op string) {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited(scope string) {}

// IncAuditEvent is a no-op.
func (n *NoopRecorder) IncAuditEvent(result string) {}
