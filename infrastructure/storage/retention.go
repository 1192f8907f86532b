package storage

import (
	"campus-chat/contract"
	"campus-chat/errors"
	"campus-chat/observability"
	"fmt"
	"log/slog"
	"sync"
)

// Trimmer keeps at most limit messages in the store.
// Runs are serialized so two concurrent trims never delete more than the excess.
type Trimmer struct {
	mu      sync.Mutex
	store   contract.MessageStore
	log     *slog.Logger
	metrics *observability.Metrics
	limit   int
}

func NewTrimmer(store contract.MessageStore, log *slog.Logger, metrics *observability.Metrics, limit int) *Trimmer {
	return &Trimmer{store: store, log: log, metrics: metrics, limit: limit}
}

// Trim deletes the oldest messages beyond the limit and returns how many were removed.
// A failure leaves the excess in place; the next run will pick it up again.
func (t *Trimmer) Trim() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count, err := t.store.Count()
	if err != nil {
		t.metrics.TrimFailures.Inc()
		return 0, fmt.Errorf("%w: %w", errors.ErrTrimFailure, err)
	}
	excess := count - t.limit
	if excess <= 0 {
		return 0, nil
	}
	if err = t.store.DeleteOldest(excess); err != nil {
		t.metrics.TrimFailures.Inc()
		return 0, fmt.Errorf("%w: %w", errors.ErrTrimFailure, err)
	}
	t.metrics.MessagesTrimmed.Add(float64(excess))
	t.log.Debug("Retention window enforced", "deleted", excess, "limit", t.limit)
	return excess, nil
}
