package sink

import (
	"chat-relay/domain/chat"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexSink_Forwards_Messages(t *testing.T) {
	req := require.New(t)
	out := make(chan chat.Message, 2)
	s := NewIndexSink(slog.Default(), out)

	req.NoError(s.Consume(context.Background(), chat.Message{ID: 1}))
	req.NoError(s.Consume(context.Background(), chat.Message{ID: 2}))

	req.Equal(chat.MessageID(1), (<-out).ID)
	req.Equal(chat.MessageID(2), (<-out).ID)
	req.Zero(s.Dropped())
}

func TestIndexSink_Drops_When_Full(t *testing.T) {
	req := require.New(t)
	out := make(chan chat.Message, 1)
	s := NewIndexSink(slog.Default(), out)

	// Given a full buffer
	req.NoError(s.Consume(context.Background(), chat.Message{ID: 1}))

	// When another message arrives, Consume still returns immediately
	req.NoError(s.Consume(context.Background(), chat.Message{ID: 2}))

	req.Equal(uint64(1), s.Dropped())
	req.Len(out, 1)
}
