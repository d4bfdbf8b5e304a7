package testutil

import (
	"sync"

	"github.com/usermgmt/usermgmt/internal/audit"
)

// AuditSink collects emitted audit events in order.
type AuditSink struct {
	mu     sync.Mutex
	events []audit.Event
}

// Emit records event.
func (s *AuditSink) Emit(event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events.
func (s *AuditSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// Types returns the recorded event types.
func (s *AuditSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}
