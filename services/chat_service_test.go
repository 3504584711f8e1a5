package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/infrastructure/index"
	"chat-relay/infrastructure/storage"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	service    *ChatService
	broker     *runtime.Broker
	index      *index.MessageIndex
	monitoring *observability.MonitoringManager
}

func newFixture(t *testing.T, options ChatOptions) fixture {
	t.Helper()
	log := slog.Default()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	repository, err := storage.NewMessageRepository(db, log)
	require.NoError(t, err)
	idx, err := index.NewMessageIndex("", log)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.Close()
		_ = repository.Close()
		_ = db.Close()
	})

	monitoring := observability.NewMonitoringManager(log)
	broker := runtime.NewBroker(log, monitoring)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)

	service := NewChatService(log, repository, broker, idx, moderator, monitoring, options)
	return fixture{service: service, broker: broker, index: idx, monitoring: monitoring}
}

func nextWithin(t *testing.T, session *runtime.Session) chat.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := session.Next(ctx)
	require.NoError(t, err)
	return m
}

func TestChatService_Alice_Posts_Bob_Receives(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	// Given bob subscribed
	bob, err := f.service.Subscribe("bob")
	req.NoError(err)
	defer bob.Close()

	// When alice posts "hello"
	posted, err := f.service.AddMessage(ctx, "alice", "hello")
	req.NoError(err)
	req.Equal(chat.MessageID(1), posted.ID)
	req.Equal(chat.Principal("alice"), posted.Author)
	req.Equal("hello", posted.Text)

	// Then bob receives exactly that message
	received := nextWithin(t, bob)
	req.Equal(posted, received)

	// And any authenticated principal lists it
	for _, p := range []chat.Principal{"alice", "bob", "carol"} {
		messages, err := f.service.ListMessages(ctx, p)
		req.NoError(err)
		req.Len(messages, 1)
		req.Equal(posted.ID, messages[0].ID)
		req.Equal("hello", messages[0].Text)
	}
}

func TestChatService_Concurrent_Posts_Are_Ordered(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	sessions := make([]*runtime.Session, 3)
	for i := range sessions {
		s, err := f.service.Subscribe(chat.Principal(fmt.Sprintf("watcher%d", i)))
		req.NoError(err)
		defer s.Close()
		sessions[i] = s
	}

	// When two principals post at the same time
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, p := range []chat.Principal{"alice", "bob"} {
		wg.Add(1)
		go func(p chat.Principal) {
			defer wg.Done()
			_, err := f.service.AddMessage(ctx, p, "race from "+string(p))
			errs <- err
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Then exactly two messages exist with distinct, ordered ids
	stored, err := f.service.ListMessages(ctx, "alice")
	req.NoError(err)
	req.Len(stored, 2)
	req.Less(stored[0].ID, stored[1].ID)

	// And every session receives both in the store order
	for _, s := range sessions {
		first := nextWithin(t, s)
		second := nextWithin(t, s)
		req.Equal(stored[0].ID, first.ID)
		req.Equal(stored[1].ID, second.ID)
	}
}

func TestChatService_Many_Concurrent_Posts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	watcher, err := f.service.Subscribe("watcher")
	req.NoError(err)
	defer watcher.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.service.AddMessage(ctx, "alice", fmt.Sprintf("message %d", i))
		}(i)
	}
	wg.Wait()

	var last chat.MessageID
	for i := 0; i < 50; i++ {
		m := nextWithin(t, watcher)
		req.Greater(m.ID, last)
		last = m.ID
	}
}

func TestChatService_Rejects_Anonymous(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	// Given bob listening
	bob, err := f.service.Subscribe("bob")
	req.NoError(err)
	defer bob.Close()

	// When an anonymous caller uses every operation
	_, err = f.service.AddMessage(ctx, chat.Anonymous, "hello")
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, err = f.service.ListMessages(ctx, chat.Anonymous)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, err = f.service.Subscribe(chat.Anonymous)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, err = f.service.SearchMessages(ctx, chat.Anonymous, "hello", 10)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// Then nothing was stored, published or registered
	history, err := f.service.ListMessages(ctx, "bob")
	req.NoError(err)
	req.Empty(history)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = bob.Next(waitCtx)
	req.ErrorIs(err, context.DeadlineExceeded)

	req.Equal(1, f.broker.Len())
	f.monitoring.Refresh()
	req.Zero(f.monitoring.GetLatest().MessagesPublished)
}

func TestChatService_Validates_Text(t *testing.T) {
	f := newFixture(t, ChatOptions{MaxContentLength: 5})
	ctx := context.Background()

	watcher, err := f.service.Subscribe("watcher")
	require.NoError(t, err)
	defer watcher.Close()

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"Empty", "", errors.ErrEmptyText},
		{"Whitespace only", " \t\n ", errors.ErrEmptyText},
		{"Too long", "abcdef", errors.ErrTextTooLong},
		{"Multibyte runes within limit", "éééé", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := f.service.AddMessage(ctx, "alice", tt.text)
			if tt.wantErr == nil {
				req.NoError(err)
				return
			}
			req.ErrorIs(err, tt.wantErr)
			req.True(errors.IsValidation(err))
		})
	}

	// Only the valid message was stored and published
	messages, err := f.service.ListMessages(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "éééé", nextWithin(t, watcher).Text)
}

func TestChatService_Censors_Text(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	bob, err := f.service.Subscribe("bob")
	req.NoError(err)
	defer bob.Close()

	// When alice posts a line containing a censored word
	posted, err := f.service.AddMessage(ctx, "alice", "  the b4dger is here ")
	req.NoError(err)

	// Then the censored text is what gets stored and delivered
	req.Equal("the ****** is here", posted.Text)
	req.Equal(posted, nextWithin(t, bob))
	history, err := f.service.ListMessages(ctx, "bob")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(posted.ID, history[0].ID)
	req.Equal("the ****** is here", history[0].Text)

	// And clean lines pass untouched
	clean, err := f.service.AddMessage(ctx, "alice", "no animals here")
	req.NoError(err)
	req.Equal("no animals here", clean.Text)
}

func TestChatService_Without_Moderation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	moderator, err := moderation.NewModerator(nil, '*', slog.Default())
	req.NoError(err)
	f.service.moderator = moderator

	posted, err := f.service.AddMessage(context.Background(), "alice", "the badger is here")
	req.NoError(err)
	req.Equal("the badger is here", posted.Text)
}

func TestChatService_Store_Failure_Does_Not_Publish(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	broker := mocks.NewMockIBroker(ctrl)
	service := NewChatService(slog.Default(), repository, broker, nil, nil, nil, ChatOptions{})

	repository.EXPECT().Append(gomock.Any(), chat.Principal("alice"), "hello").
		Return(chat.Message{}, fmt.Errorf("disk full"))
	broker.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := service.AddMessage(context.Background(), "alice", "hello")

	req.ErrorIs(err, errors.ErrStore)
}

func TestChatService_Publishes_After_Append(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	broker := mocks.NewMockIBroker(ctrl)
	service := NewChatService(slog.Default(), repository, broker, nil, nil, nil, ChatOptions{})
	stored := chat.Message{ID: 42, Author: "alice", Text: "hello", CreatedAt: time.Now()}

	gomock.InOrder(
		repository.EXPECT().Append(gomock.Any(), chat.Principal("alice"), "hello").Return(stored, nil),
		broker.EXPECT().Publish(gomock.Any(), stored).Times(1),
	)

	posted, err := service.AddMessage(context.Background(), "alice", "hello")
	req.NoError(err)
	req.Equal(stored, posted)
}

func TestChatService_Search(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	for _, text := range []string{"golang is fun", "coffee time", "more golang please"} {
		_, err := f.service.AddMessage(ctx, "alice", text)
		req.NoError(err)
	}
	req.NoError(f.service.RebuildIndex(ctx))

	messages, err := f.service.SearchMessages(ctx, "bob", "golang", 0)
	req.NoError(err)
	req.Equal([]string{"golang is fun", "more golang please"},
		lo.Map(messages, func(m chat.Message, _ int) string { return m.Text }))

	_, err = f.service.SearchMessages(ctx, "bob", strings.Repeat(" ", 3), 0)
	req.ErrorIs(err, errors.ErrEmptyQuery)
}

func TestChatService_Subscribe_Tracks_Sessions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, ChatOptions{Backpressure: chat.Backpressure{Capacity: 1, Policy: chat.DropOldest}})

	session, err := f.service.Subscribe("bob")
	req.NoError(err)

	_, err = f.service.AddMessage(context.Background(), "alice", "one")
	req.NoError(err)
	_, err = f.service.AddMessage(context.Background(), "alice", "two")
	req.NoError(err)
	req.Equal("two", nextWithin(t, session).Text)

	session.Close()
	f.monitoring.Refresh()
	stats := f.monitoring.GetLatest()
	req.Equal(uint64(1), stats.SessionsOpened)
	req.Equal(uint64(1), stats.SessionsClosed)
	req.Equal(uint64(1), stats.MessagesDropped)
	req.Equal(uint64(2), stats.MessagesPublished)
}
