package workers

import (
	"campus-chat/contract"
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

const retryAfterBadSchedule = 30 * time.Second

// RetentionSweep runs the trimmer on a cron schedule.
// Trimming after each append is best effort; the sweep makes the store converge
// to the retention window even when no further message is posted.
type RetentionSweep struct {
	log     *slog.Logger
	trimmer contract.Trimmer
	cron    string
	now     func() time.Time
}

func NewRetentionSweep(log *slog.Logger, trimmer contract.Trimmer, cron string) *RetentionSweep {
	return &RetentionSweep{log: log, trimmer: trimmer, cron: cron, now: time.Now}
}

func (w *RetentionSweep) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(w.cron, w.now(), false)
		if err != nil {
			w.log.Error("Retention schedule invalid", "cron", w.cron, "error", err)
			if !sleep(ctx, retryAfterBadSchedule) {
				return nil
			}
			continue
		}

		if !sleep(ctx, time.Until(next)) {
			return nil
		}
		w.Sweep()
	}
}

// Sweep runs the trimmer once and logs the outcome.
func (w *RetentionSweep) Sweep() {
	deleted, err := w.trimmer.Trim()
	if err != nil {
		w.log.Warn("Retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		w.log.Info("Retention sweep removed messages", "deleted", deleted)
	}
}

// sleep returns false when the context was canceled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
