package runtime

import (
	"campus-chat/contract"
	"sync"
)

// Registry is the set of active connections of the broadcast channel.
// It is only mutated from connect and disconnect handlers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.EventSink // map connection -> Sink
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.EventSink),
	}
}

// Sinks returns a snapshot of every active connection sink.
// Returns nil when nobody is connected.
func (r *Registry) Sinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sessions) == 0 {
		return nil
	}
	activeSinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, sink := range r.sessions {
		activeSinks = append(activeSinks, sink)
	}
	return activeSinks
}

// Subscribe registers a connection's sink. Subscribing twice replaces the sink.
func (r *Registry) Subscribe(connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connectionID] = sink
}

// Unsubscribe removes a connection from the fan-out set.
func (r *Registry) Unsubscribe(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, connectionID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
