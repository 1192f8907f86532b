// Package chat contains core concepts of the live feed.
// Messages are immutable once the store has accepted them.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// RetentionLimit is the default size of the retention window.
const RetentionLimit = 100

// Message represents an immutable chat entry.
// ID, Seq and CreatedAt are assigned by the store, never by the client.
type Message struct {
	ID        uuid.UUID // unique identifier
	Seq       uint64    // insertion order, strictly increasing
	Author    string
	Content   string
	CreatedAt time.Time
}
