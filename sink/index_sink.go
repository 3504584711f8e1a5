// Package sink holds the permanent broker sinks that feed background workers.
package sink

import (
	"chat-relay/domain/chat"
	"context"
	"log/slog"
	"sync/atomic"
)

// IndexSink hands published messages over to the index worker.
// It never blocks the broker: when the buffer is full the message is dropped.
type IndexSink struct {
	log     *slog.Logger
	out     chan<- chat.Message
	dropped atomic.Uint64
}

func NewIndexSink(log *slog.Logger, out chan<- chat.Message) *IndexSink {
	return &IndexSink{log: log, out: out}
}

func (s *IndexSink) Consume(_ context.Context, message chat.Message) error {
	select {
	case s.out <- message:
	default:
		s.dropped.Add(1)
		s.log.Warn("Index buffer full, message not indexed", "message_id", message.ID)
	}
	return nil
}

// Dropped returns how many messages never reached the index worker.
func (s *IndexSink) Dropped() uint64 {
	return s.dropped.Load()
}
