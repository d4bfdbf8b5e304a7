package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usermgmt/usermgmt/internal/metrics"
)

const (
	// StreamKey is the Redis stream for audit events.
	StreamKey = "stream:auth_events"

	// DefaultMaxLen is the approximate max length of the stream.
	DefaultMaxLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher appends audit events to a Redis stream.
type Publisher struct {
	redis   *redis.Client
	maxLen  int64
	logger  *slog.Logger
	metrics metrics.Recorder

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher creates a new audit event publisher.
// A non-positive maxLen falls back to DefaultMaxLen.
func NewPublisher(client *redis.Client, maxLen int64, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Publisher{
		redis:   client,
		maxLen:  maxLen,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns its stream ID.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    event.Type,
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// Emit publishes without blocking the caller.
// Errors are logged and counted, never returned. Events emitted after Close are dropped.
func (p *Publisher) Emit(event Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("audit publisher closed, dropping event", "type", event.Type)
		p.metrics.IncAuditEvent(metrics.AuditDropped)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish audit event",
				"type", event.Type,
				"error", err,
			)
			p.metrics.IncAuditEvent(metrics.AuditDropped)
			return
		}

		p.logger.Debug("audit event published",
			"type", event.Type,
			"stream_id", streamID,
		)
		p.metrics.IncAuditEvent(metrics.AuditPublished)
	}()
}

// Close stops accepting events and waits for in-flight publishes like Wait.
// It is safe to call more than once.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Wait(ctx)
}

// Wait blocks until in-flight Emit calls finish or ctx is done.
func (p *Publisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entry is an event read back from the stream.
type Entry struct {
	ID    string
	Event Event
}

// Recent returns up to count of the newest events, newest first.
// Entries whose payload cannot be decoded are skipped.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]Entry, error) {
	msgs, err := p.redis.XRevRangeN(ctx, StreamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			p.logger.Warn("audit entry without payload", "stream_id", msg.ID)
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			p.logger.Warn("undecodable audit entry", "stream_id", msg.ID, "error", err)
			continue
		}
		entries = append(entries, Entry{ID: msg.ID, Event: event})
	}
	return entries, nil
}
