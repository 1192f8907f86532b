package sink

import (
	"campus-chat/domain/event"
	"campus-chat/errors"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ConnectionSink buffers events for one WebSocket connection.
// The fan-out worker pushes into it; the connection's writer goroutine drains Events.
type ConnectionSink struct {
	log       *slog.Logger
	Events    chan event.DomainEvent
	closed    chan struct{}
	closeOnce sync.Once
	lagging   atomic.Bool
}

func NewConnectionSink(log *slog.Logger, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		log:    log,
		Events: make(chan event.DomainEvent, bufferSize),
		closed: make(chan struct{}),
	}
}

// Consume is called by fanout
// Redirect the event through the concerned owner of the channel
// It waits for buffer space until ctx expires, then the event is dropped for this connection.
// Once an event was dropped the sink is lagging: later events are dropped at once
// while the buffer is still full, until one fits again.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.closed:
		return errors.ErrSinkClosed
	default:
	}
	select {
	case s.Events <- e:
		s.lagging.Store(false)
		return nil
	default:
	}
	if s.lagging.Load() {
		return errors.ErrSinkLagging
	}
	select {
	case s.Events <- e:
		return nil
	case <-s.closed:
		return errors.ErrSinkClosed
	case <-ctx.Done():
		s.lagging.Store(true)
		s.log.Warn("Connection buffer full, event dropped", "event", e.Name())
		return ctx.Err()
	}
}

// Close makes every later Consume fail fast. Events is never closed
// because the fan-out worker may still hold a reference to the sink.
func (s *ConnectionSink) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.closed
}
