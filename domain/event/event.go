package event

import (
	"campus-chat/domain/chat"
)

type DomainEvent interface {
	Name() string
}

// InitMessages is sent once, to the connecting client only.
type InitMessages struct {
	Messages []chat.Message
}

func (InitMessages) Name() string { return "initMessages" }

// MessageBroadcast is fanned out to every active connection, sender included.
type MessageBroadcast struct {
	Message chat.Message
}

func (MessageBroadcast) Name() string { return "messageBroadcast" }

// MessageRejected tells the submitter that its message was not stored.
type MessageRejected struct {
	Reason string
}

func (MessageRejected) Name() string { return "messageError" }
