// Package wire defines the JSON frames exchanged on the feed WebSocket.
// Every frame is {"event": name, "data": payload}.
package wire

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const NewMessageEvent = "newMessage"

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Message struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessage struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

type MessageError struct {
	Reason string `json:"reason"`
}

func FromMessage(message chat.Message) Message {
	return Message{
		ID:        message.ID.String(),
		Seq:       message.Seq,
		Author:    message.Author,
		Content:   message.Content,
		Timestamp: message.CreatedAt,
	}
}

func FromMessages(messages []chat.Message) []Message {
	return lo.Map(messages, func(item chat.Message, _ int) Message {
		return FromMessage(item)
	})
}

func ToMessage(message Message) (chat.Message, error) {
	id, err := uuid.Parse(message.ID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("invalid message id %q: %w", message.ID, err)
	}
	return chat.Message{
		ID:        id,
		Seq:       message.Seq,
		Author:    message.Author,
		Content:   message.Content,
		CreatedAt: message.Timestamp,
	}, nil
}

// Encode turns an outbound domain event into a frame.
func Encode(e event.DomainEvent) (Frame, error) {
	var payload any
	switch evt := e.(type) {
	case event.InitMessages:
		payload = FromMessages(evt.Messages)
	case event.MessageBroadcast:
		payload = FromMessage(evt.Message)
	case event.MessageRejected:
		payload = MessageError{Reason: evt.Reason}
	default:
		return Frame{}, fmt.Errorf("unsupported event %q", e.Name())
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: e.Name(), Data: data}, nil
}

// Decode turns an outbound frame back into a domain event, for clients.
func Decode(frame Frame) (event.DomainEvent, error) {
	switch frame.Event {
	case event.InitMessages{}.Name():
		var payload []Message
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		messages := make([]chat.Message, 0, len(payload))
		for _, item := range payload {
			message, err := ToMessage(item)
			if err != nil {
				return nil, err
			}
			messages = append(messages, message)
		}
		return event.InitMessages{Messages: messages}, nil
	case event.MessageBroadcast{}.Name():
		var payload Message
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		message, err := ToMessage(payload)
		if err != nil {
			return nil, err
		}
		return event.MessageBroadcast{Message: message}, nil
	case event.MessageRejected{}.Name():
		var payload MessageError
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		return event.MessageRejected{Reason: payload.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", frame.Event)
	}
}
