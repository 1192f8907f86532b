package workers

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/mocks"
	"campus-chat/observability"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanoutWorker_Fanout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	metrics := observability.NewMetrics()

	fanoutWorker := NewEventFanout(log, mockRegistry, nil, metrics, time.Second, permanentSink)
	evt := event.MessageBroadcast{Message: chat.Message{Author: "Alice", Content: "hi"}}

	// Given two connections are active
	mockRegistry.EXPECT().Sinks().Return([]contract.EventSink{mockSink, mockSink}).Times(1)
	// Then the event reaches both connections and the permanent sink
	mockSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(2)
	permanentSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When an event is handled by worker
	fanoutWorker.Fanout(context.Background(), evt)

	values, err := metrics.Gather()
	req.NoError(err)
	req.Equal(float64(2), values["campus_chat_broadcasts_delivered_total"])
}

func TestEventFanoutWorker_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	fastSink := mocks.NewMockEventSink(ctrl)
	metrics := observability.NewMetrics()

	sinkTimeout := 20 * time.Millisecond
	fanoutWorker := NewEventFanout(log, mockRegistry, nil, metrics, sinkTimeout)

	mockRegistry.EXPECT().Sinks().Return([]contract.EventSink{slowSink, fastSink}).Times(1)
	// Given a sink blocking until its deadline
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		Times(1)
	// Then the next sink still receives the event
	fastSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	start := time.Now()
	fanoutWorker.Fanout(context.Background(), event.MessageBroadcast{})
	req.Less(time.Since(start), time.Second)

	values, err := metrics.Gather()
	req.NoError(err)
	req.Equal(float64(1), values["campus_chat_broadcasts_dropped_total"])
	req.Equal(float64(1), values["campus_chat_broadcasts_delivered_total"])
}

func TestEventFanoutWorker_Stuck_Sinks_Wait_Together(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	metrics := observability.NewMetrics()
	sinkTimeout := 100 * time.Millisecond
	fanoutWorker := NewEventFanout(slog.Default(), mockRegistry, nil, metrics, sinkTimeout)

	// Given five connections that never drain
	var sinks []contract.EventSink
	for range 5 {
		stuck := mocks.NewMockEventSink(ctrl)
		stuck.EXPECT().Consume(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
				<-ctx.Done()
				return ctx.Err()
			}).
			Times(1)
		sinks = append(sinks, stuck)
	}
	mockRegistry.EXPECT().Sinks().Return(sinks).Times(1)

	// When an event is fanned out
	start := time.Now()
	fanoutWorker.Fanout(context.Background(), event.MessageBroadcast{})

	// Then the feed is held for one timeout, not one per connection
	req.Less(time.Since(start), 3*sinkTimeout)

	values, err := metrics.Gather()
	req.NoError(err)
	req.Equal(float64(5), values["campus_chat_broadcasts_dropped_total"])
}

func TestEventFanoutWorker_Run_Preserves_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	events := make(chan event.DomainEvent, 10)
	fanoutWorker := NewEventFanout(slog.Default(), mockRegistry, events, observability.NewMetrics(), time.Second)

	received := make(chan uint64, 10)
	mockRegistry.EXPECT().Sinks().Return([]contract.EventSink{mockSink}).AnyTimes()
	mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			received <- evt.(event.MessageBroadcast).Message.Seq
			return nil
		}).
		Times(5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fanoutWorker.Run(ctx) }()

	// When events are published in sequence
	for seq := uint64(1); seq <= 5; seq++ {
		events <- event.MessageBroadcast{Message: chat.Message{Seq: seq}}
	}

	// Then they are delivered in the same order
	for seq := uint64(1); seq <= 5; seq++ {
		select {
		case got := <-received:
			req.Equal(seq, got)
		case <-time.After(time.Second):
			req.Fail("event not delivered")
		}
	}

	cancel()
	req.NoError(<-done)
}
