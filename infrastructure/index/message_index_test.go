package index

import (
	"chat-relay/domain/chat"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *MessageIndex {
	idx, err := NewMessageIndex("", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestMessageIndex_Search_Returns_Creation_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	idx := newTestIndex(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	// Given three indexed messages, two of them about badgers
	req.NoError(idx.Index(ctx,
		chat.Message{ID: 3, Author: "bob", Text: "badger badger badger", CreatedAt: now.Add(2 * time.Second)},
		chat.Message{ID: 1, Author: "alice", Text: "I saw a badger today", CreatedAt: now},
		chat.Message{ID: 2, Author: "alice", Text: "nothing to see", CreatedAt: now.Add(time.Second)},
	))

	// When searching
	messages, err := idx.Search(ctx, "Badger", 10)
	req.NoError(err)

	// Then matches come back by id with every stored field
	req.Equal([]chat.MessageID{1, 3}, lo.Map(messages, func(m chat.Message, _ int) chat.MessageID { return m.ID }))
	req.Equal(chat.Principal("alice"), messages[0].Author)
	req.Equal("I saw a badger today", messages[0].Text)
	req.True(now.Equal(messages[0].CreatedAt))
}

func TestMessageIndex_Search_Limit_Keeps_Newest(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	idx := newTestIndex(t)

	// Given older messages that score higher than the newer ones
	for i := 1; i <= 3; i++ {
		req.NoError(idx.Index(ctx, chat.Message{ID: chat.MessageID(i), Author: "alice", Text: "hello hello hello", CreatedAt: time.Now()}))
	}
	for i := 4; i <= 5; i++ {
		req.NoError(idx.Index(ctx, chat.Message{ID: chat.MessageID(i), Author: "bob",
			Text: "well hello there, long time no see my old friend", CreatedAt: time.Now()}))
	}

	// When asking for fewer hits than there are matches
	messages, err := idx.Search(ctx, "hello", 2)
	req.NoError(err)

	// Then the newest matches win, listed oldest first
	req.Equal([]chat.MessageID{4, 5}, lo.Map(messages, func(m chat.Message, _ int) chat.MessageID { return m.ID }))
}

func TestMessageIndex_Reindex_Replaces_Document(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	idx := newTestIndex(t)
	message := chat.Message{ID: 1, Author: "alice", Text: "hello world", CreatedAt: time.Now()}

	req.NoError(idx.Index(ctx, message))
	req.NoError(idx.Index(ctx, message))

	messages, err := idx.Search(ctx, "world", 10)
	req.NoError(err)
	req.Len(messages, 1)
}

func TestMessageIndex_No_Match(t *testing.T) {
	req := require.New(t)
	idx := newTestIndex(t)

	messages, err := idx.Search(context.Background(), "anything", 10)
	req.NoError(err)
	req.Empty(messages)
}
