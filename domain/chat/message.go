// Package chat contains the core concepts of the chat system.
// Messages are immutable once the store has assigned their identifier.
// No runtime, network, or storage logic should be added here.
package chat

import "time"

type MessageID uint64

// Message is an immutable chat entry created by the message store on append.
type Message struct {
	ID        MessageID
	Author    Principal
	Text      string
	CreatedAt time.Time
}

// Before reports whether m was created before other.
func (m Message) Before(other Message) bool {
	return m.ID < other.ID
}
