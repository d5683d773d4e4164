package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers processed event ids. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps ids in process memory for ttl.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryIdempotencyStore creates a store whose entries expire after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.entries[eventID]
	if !ok {
		return false, nil
	}
	if s.now().Sub(at) > s.ttl {
		delete(s.entries, eventID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[eventID] = s.now()
	return nil
}

// Len counts stored ids, expired or not.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// IdempotentHandler skips events whose id is already in store and records
// ids only after inner succeeds. Store failures fall through to inner.
func IdempotentHandler(store IdempotencyStore, inner Handler, metrics *Metrics, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		seen, err := store.Contains(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		if seen {
			if metrics != nil {
				metrics.Duplicates.WithLabelValues(event.EventType).Inc()
			}
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			logger.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
