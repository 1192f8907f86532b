//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	Sinks() []EventSink
	Subscribe(connectionID string, sink EventSink)
	Unsubscribe(connectionID string)
	Len() int
}

// MessageStore is the persisted, ordered collection of chat messages.
type MessageStore interface {
	Append(author, content string) (chat.Message, error)
	Recent(limit int) ([]chat.Message, error)
	Count() (int, error)
	DeleteOldest(n int) error
}

// Trimmer enforces the retention window on a MessageStore.
type Trimmer interface {
	Trim() (int, error)
}
