package sink

import (
	"campus-chat/domain/event"
	"context"
	"log/slog"
)

// AuditSink writes one log line per broadcast message.
// It is registered once at startup and receives every event, connected clients or not.
type AuditSink struct {
	log *slog.Logger
}

func NewAuditSink(log *slog.Logger) *AuditSink {
	return &AuditSink{log: log.With("sink", "audit")}
}

func (a *AuditSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageBroadcast:
		a.log.Info("Message broadcast",
			"seq", evt.Message.Seq,
			"id", evt.Message.ID,
			"author", evt.Message.Author,
			"content_length", len(evt.Message.Content),
			"at", evt.Message.CreatedAt,
		)
	}
	return nil
}
