package workers

import (
	"campus-chat/domain/event"
	"campus-chat/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthWorker periodically reports how many broadcasts wait for the fan-out worker
// and logs a heartbeat with the process memory and CPU.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with producers or the consumer.
type HealthWorker struct {
	log      *slog.Logger
	events   chan event.DomainEvent
	metrics  *observability.Metrics
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, events chan event.DomainEvent,
	metrics *observability.Metrics, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, events: events, metrics: metrics, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process stats unavailable, heartbeat disabled", "error", err)
		p = nil
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			length := w.Sample()
			if p != nil {
				w.heartbeat(p, length)
			}
		}
	}
}

// Sample records the queue length and warns above 90% of the capacity.
func (w *HealthWorker) Sample() int {
	length, capacity := len(w.events), cap(w.events)
	w.metrics.QueueLength.Set(float64(length))
	if capacity > 0 && length*10 >= capacity*9 {
		w.log.Warn("Broadcast queue nearly full", "length", length, "capacity", capacity)
	}
	return length
}

func (w *HealthWorker) heartbeat(p *process.Process, queueLength int) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
		return
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
		return
	}
	w.log.Debug("Heartbeat", "rss_bytes", memInfo.RSS, "cpu_percent", cpu, "queue_length", queueLength)
}
