// Package projection builds local timelines from observed events.
// Handles ordering, deduplication and the retention cap.
// Does not emit events or interact with UI directly.
package projection

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"context"
	"sync"
)

// Timeline mirrors the feed as seen by one client: it is replaced by
// InitMessages, grows with MessageBroadcast and never holds more than limit entries.
type Timeline struct {
	mu       sync.RWMutex
	limit    int
	lastSeq  uint64
	messages []chat.Message
}

func NewTimeline(limit int) *Timeline {
	return &Timeline{limit: limit}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.InitMessages:
		t.reset(evt.Messages)
	case event.MessageBroadcast:
		t.append(evt.Message)
	}
	return nil
}

// Messages returns a copy, oldest first.
func (t *Timeline) Messages() []chat.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]chat.Message(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) reset(messages []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(messages) > t.limit {
		messages = messages[len(messages)-t.limit:]
	}
	t.messages = append(make([]chat.Message, 0, t.limit), messages...)
	t.lastSeq = 0
	if len(messages) > 0 {
		t.lastSeq = messages[len(messages)-1].Seq
	}
}

// append ignores a message already seen. A zero Seq is always accepted.
func (t *Timeline) append(message chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if message.Seq != 0 {
		if message.Seq <= t.lastSeq {
			return
		}
		t.lastSeq = message.Seq
	}
	t.messages = append(t.messages, message)
	if excess := len(t.messages) - t.limit; excess > 0 {
		t.messages = append(t.messages[:0], t.messages[excess:]...)
	}
}
