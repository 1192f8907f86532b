package workers

import (
	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/observability"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// EventFanout delivers broadcast events to every active connection.
//
// Events are drained from a single FIFO channel by one goroutine. Each event is
// handed to all sinks concurrently and the next event waits for every delivery,
// so every connection observes events in the order they were published.
// A sink that cannot accept an event within sinkTimeout misses that event only.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	events         chan event.DomainEvent
	metrics        *observability.Metrics
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, events chan event.DomainEvent,
	metrics *observability.Metrics, sinkTimeout time.Duration, permanentSinks ...contract.EventSink) *EventFanout {
	return &EventFanout{
		log:            log,
		registry:       registry,
		permanentSinks: permanentSinks,
		events:         events,
		metrics:        metrics,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout delivers one event to every sink at once and returns when all of them
// accepted it or timed out. A stuck sink delays the feed by one sinkTimeout at most.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var wg sync.WaitGroup
	var delivered, dropped atomic.Int64
	for _, sink := range w.permanentSinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.deliver(ctx, sink, evt)
		}()
	}
	for _, sink := range w.registry.Sinks() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.deliver(ctx, sink, evt) {
				delivered.Add(1)
			} else {
				dropped.Add(1)
			}
		}()
	}
	wg.Wait()
	w.metrics.BroadcastsDelivered.Add(float64(delivered.Load()))
	w.metrics.BroadcastsDropped.Add(float64(dropped.Load()))
}

func (w *EventFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) bool {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Warn("Event not delivered to sink", "event", evt.Name(), "error", err)
		return false
	}
	return true
}
