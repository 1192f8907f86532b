// Package runtime handles event production and propagation of the live feed.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/observability"
	"campus-chat/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Orchestrator struct {
	mu             sync.Mutex // serializes append, trim and publish
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	store          contract.MessageStore
	trimmer        contract.Trimmer
	metrics        *observability.Metrics
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
	retentionCron  string
	queueInterval  time.Duration

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, store contract.MessageStore, trimmer contract.Trimmer,
	metrics *observability.Metrics, bufferSize int, sinkTimeout time.Duration, retentionCron string) *Orchestrator {
	return &Orchestrator{
		log:           log,
		supervisor:    supervisor,
		registry:      registry,
		store:         store,
		trimmer:       trimmer,
		metrics:       metrics,
		events:        make(chan event.DomainEvent, bufferSize),
		sinkTimeout:   sinkTimeout,
		retentionCron: retentionCron,
	}
}

// Add registers sinks receiving every broadcast, whether or not clients are connected.
// It must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// MonitorQueue samples the broadcast queue every interval once started.
// It must be called before Start.
func (o *Orchestrator) MonitorQueue(interval time.Duration) {
	o.queueInterval = interval
}

// PostMessage appends the message, trims the store and publishes the broadcast.
// The whole sequence runs under one lock so broadcast order equals append order.
// A storage failure is returned to the caller and nothing is broadcast.
// A trim failure is only logged: the next append retries it.
func (o *Orchestrator) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	message, err := o.store.Append(cmd.Author, cmd.Content)
	if err != nil {
		o.metrics.AppendFailures.Inc()
		o.log.Error("Message not stored", "connection_id", cmd.ConnectionID, "error", err)
		return chat.Message{}, err
	}
	o.metrics.MessagesAppended.Inc()

	if _, err = o.trimmer.Trim(); err != nil {
		o.log.Warn("Trim failed, will retry on next append", "error", err)
	}

	select {
	case o.events <- event.MessageBroadcast{Message: message}:
	case <-o.stopped():
		o.log.Warn("Broadcast not queued, orchestrator stopped", "seq", message.Seq)
	case <-ctx.Done():
		o.log.Warn("Broadcast not queued", "seq", message.Seq, "error", ctx.Err())
	}
	return message, nil
}

// GetMessages returns the most recent messages, oldest first.
func (o *Orchestrator) GetMessages(cmd chat.GetMessageCommand) ([]chat.Message, error) {
	return o.store.Recent(cmd.Limit)
}

func (o *Orchestrator) RegisterParticipant(connectionID string, sink contract.EventSink) {
	o.registry.Subscribe(connectionID, sink)
	o.metrics.ActiveConnections.Set(float64(o.registry.Len()))
}

// UnregisterParticipant disconnects a client.
func (o *Orchestrator) UnregisterParticipant(connectionID string) {
	o.registry.Unsubscribe(connectionID)
	o.metrics.ActiveConnections.Set(float64(o.registry.Len()))
}

// Start registers the fan-out worker and the optional retention sweep and
// queue monitor, then runs the supervisor in the background.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	if o.done != nil {
		return fmt.Errorf("orchestrator already started")
	}

	o.supervisor.Add(workers.NewEventFanout(o.log, o.registry, o.events, o.metrics, o.sinkTimeout, o.permanentSinks...))
	if o.retentionCron != "" {
		o.supervisor.Add(workers.NewRetentionSweep(o.log, o.trimmer, o.retentionCron))
	}
	if o.queueInterval > 0 {
		o.supervisor.Add(workers.NewHealthWorker(o.log, o.events, o.metrics, o.queueInterval))
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		o.supervisor.Run(runCtx)
	}(o.done)

	o.log.Info("Starting orchestrator and all supervised workers")
	return nil
}

// Stop initiates a graceful shutdown of the orchestrator and waits for the workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.lifecycle.Lock()
	cancel, done := o.cancel, o.done
	o.lifecycle.Unlock()
	if cancel == nil {
		return
	}
	o.supervisor.Stop()
	cancel()
	<-done
	o.log.Debug("Orchestrator workers stopped")
}

// stopped is nil, and blocks forever, until Start was called.
func (o *Orchestrator) stopped() <-chan struct{} {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.done
}
