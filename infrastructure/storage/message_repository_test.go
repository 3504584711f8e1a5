package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, dir string) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	return db
}

func Test_Append_Assigns_Increasing_Ids(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t, t.TempDir())
	defer db.Close()

	repository, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	defer repository.Close()

	// Given an empty store
	// When alice posts her first message
	first, err := repository.Append(ctx, "alice", "hello")
	req.NoError(err)

	// Then it gets the first id
	req.Equal(chat.MessageID(1), first.ID)
	req.Equal(chat.Principal("alice"), first.Author)
	req.Equal("hello", first.Text)

	second, err := repository.Append(ctx, "bob", "hi alice")
	req.NoError(err)
	req.Equal(chat.MessageID(2), second.ID)
	req.False(second.CreatedAt.Before(first.CreatedAt))
}

func Test_ListAll_Returns_Creation_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t, t.TempDir())
	defer db.Close()

	repository, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	defer repository.Close()

	// Enough messages to cross a padding boundary (9 -> 10 -> 11)
	var appended []chat.Message
	for i := 1; i <= 12; i++ {
		message, err := repository.Append(ctx, "alice", fmt.Sprintf("message %d", i))
		req.NoError(err)
		appended = append(appended, message)
	}

	listed, err := repository.ListAll(ctx)
	req.NoError(err)
	req.Equal(appended, listed)
}

func Test_ListAll_Empty_Store(t *testing.T) {
	req := require.New(t)
	db := openDB(t, t.TempDir())
	defer db.Close()

	repository, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	defer repository.Close()

	listed, err := repository.ListAll(context.Background())
	req.NoError(err)
	req.Empty(listed)
}

func Test_Concurrent_Appends_Are_Serialized(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t, t.TempDir())
	defer db.Close()

	repository, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	defer repository.Close()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := repository.Append(ctx, chat.Principal(fmt.Sprintf("user%d", w)), "ping")
				if err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	listed, err := repository.ListAll(ctx)
	req.NoError(err)
	req.Len(listed, writers*perWriter)
	for i := 1; i < len(listed); i++ {
		req.Equal(listed[i-1].ID+1, listed[i].ID)
		req.False(listed[i].CreatedAt.Before(listed[i-1].CreatedAt))
	}
}

func Test_Ids_Are_Never_Reused_After_Restart(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	db := openDB(t, dir)
	repository, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	first, err := repository.Append(ctx, "alice", "before restart")
	req.NoError(err)
	req.NoError(repository.Close())
	req.NoError(db.Close())

	// When the store is reopened
	db = openDB(t, dir)
	defer db.Close()
	repository, err = NewMessageRepository(db, slog.Default())
	req.NoError(err)
	defer repository.Close()

	second, err := repository.Append(ctx, "bob", "after restart")
	req.NoError(err)

	// Then the new id is strictly greater
	req.Greater(second.ID, first.ID)
	req.False(second.CreatedAt.Before(first.CreatedAt))

	listed, err := repository.ListAll(ctx)
	req.NoError(err)
	req.Len(listed, 2)
	req.Equal("before restart", listed[0].Text)
	req.Equal("after restart", listed[1].Text)
}

func Test_Append_With_Canceled_Context(t *testing.T) {
	req := require.New(t)
	db := openDB(t, t.TempDir())
	defer db.Close()

	repository, err := NewMessageRepository(db, slog.Default())
	req.NoError(err)
	defer repository.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repository.Append(ctx, "alice", "never stored")
	req.ErrorIs(err, errors.ErrStore)

	listed, err := repository.ListAll(context.Background())
	req.NoError(err)
	req.Empty(listed)
}
