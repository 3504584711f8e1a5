package runtime

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestBroker() *Broker {
	return NewBroker(slog.Default(), nil)
}

func message(id chat.MessageID, text string) chat.Message {
	return chat.Message{ID: id, Author: "alice", Text: text, CreatedAt: time.Now().UTC()}
}

func TestBroker_Register_And_Publish(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := newTestBroker()
	sink := mocks.NewMockEventSink(ctrl)
	m1 := message(1, "hello")

	// Given a registered sink
	req.NoError(broker.Register(sink))
	req.Equal(1, broker.Len())

	// Then it receives the published message exactly once
	sink.EXPECT().Consume(gomock.Any(), m1).Return(nil).Times(1)

	// When a message is published
	broker.Publish(context.Background(), m1)
}

func TestBroker_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := newTestBroker()
	sink := mocks.NewMockEventSink(ctrl)
	unknown := mocks.NewMockEventSink(ctrl)

	req.NoError(broker.Register(sink))

	broker.Unregister(sink)
	broker.Unregister(sink)
	broker.Unregister(unknown)

	req.Equal(0, broker.Len())
}

func TestBroker_No_Delivery_After_Unregister(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := newTestBroker()
	sink := mocks.NewMockEventSink(ctrl)

	// Given a sink that was registered then removed
	req.NoError(broker.Register(sink))
	broker.Unregister(sink)

	// Then Consume is never called
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

	broker.Publish(context.Background(), message(1, "nobody listens"))
}

// blockingSink parks in Consume until released.
type blockingSink struct {
	entered  chan struct{}
	release  chan struct{}
	consumed atomic.Int32
}

func (s *blockingSink) Consume(_ context.Context, _ chat.Message) error {
	s.consumed.Add(1)
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

func TestBroker_Unregister_During_Publish(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker()
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	req.NoError(broker.Register(sink))

	// Given a publish stuck inside the sink
	published := make(chan struct{})
	go func() {
		broker.Publish(context.Background(), message(1, "in flight"))
		close(published)
	}()
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		req.FailNow("publish never reached the sink")
	}

	// When another goroutine unregisters the sink
	unregistered := make(chan struct{})
	go func() {
		broker.Unregister(sink)
		close(unregistered)
	}()

	// Then Unregister waits for the in-flight delivery
	select {
	case <-unregistered:
		req.FailNow("unregister returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(sink.release)
	<-unregistered
	<-published
	seen := sink.consumed.Load()
	req.Equal(int32(1), seen)

	// And nothing reaches the sink afterwards
	broker.Publish(context.Background(), message(2, "too late"))
	req.Equal(seen, sink.consumed.Load())
	req.Equal(0, broker.Len())
}

func TestBroker_Failing_Sink_Does_Not_Affect_Others(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := newTestBroker()
	failing := mocks.NewMockEventSink(ctrl)
	panicking := mocks.NewMockEventSink(ctrl)
	healthy := mocks.NewMockEventSink(ctrl)
	m1 := message(1, "still delivered")

	req.NoError(broker.Register(failing))
	req.NoError(broker.Register(panicking))
	req.NoError(broker.Register(healthy))

	failing.EXPECT().Consume(gomock.Any(), m1).Return(errors.ErrStore)
	panicking.EXPECT().Consume(gomock.Any(), m1).DoAndReturn(
		func(ctx context.Context, m chat.Message) error {
			panic("boom")
		})
	healthy.EXPECT().Consume(gomock.Any(), m1).Return(nil).Times(1)

	broker.Publish(context.Background(), m1)

	// Non-terminal failures keep the sink registered
	req.Equal(3, broker.Len())
}

func TestBroker_Removes_Sinks_With_Terminal_Errors(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := newTestBroker()
	closed := mocks.NewMockEventSink(ctrl)
	overflowed := mocks.NewMockEventSink(ctrl)

	req.NoError(broker.Register(closed))
	req.NoError(broker.Register(overflowed))

	closed.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrSessionClosed).Times(1)
	overflowed.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrQueueOverflow).Times(1)

	broker.Publish(context.Background(), message(1, "first"))
	req.Equal(0, broker.Len())

	// A second publish reaches neither sink
	broker.Publish(context.Background(), message(2, "second"))
}

func TestBroker_Shutdown_Closes_Sessions(t *testing.T) {
	req := require.New(t)
	broker := newTestBroker()

	// Given two active sessions
	alice, err := NewSession("alice", broker, chat.Backpressure{}, SessionHooks{})
	req.NoError(err)
	bob, err := NewSession("bob", broker, chat.Backpressure{}, SessionHooks{})
	req.NoError(err)
	req.Equal(2, broker.Len())

	// When the broker shuts down
	broker.Shutdown()
	broker.Shutdown()

	// Then sessions are terminal with the broker cause
	req.Equal(chat.SessionClosed, alice.State())
	req.Equal(chat.SessionClosed, bob.State())
	req.ErrorIs(alice.Err(), errors.ErrBrokerClosed)
	req.Equal(0, broker.Len())

	// And new registrations are rejected
	_, err = NewSession("carol", broker, chat.Backpressure{}, SessionHooks{})
	req.ErrorIs(err, errors.ErrBrokerClosed)
}

func TestBroker_Concurrent_Register_And_Publish(t *testing.T) {
	req := require.New(t)
	monitoring := observability.NewMonitoringManager(slog.Default())
	broker := NewBroker(slog.Default(), monitoring)

	var wg sync.WaitGroup
	sessions := make([]*Session, 20)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := NewSession("user", broker, chat.Backpressure{}, SessionHooks{})
			if err == nil {
				sessions[i] = s
			}
		}(i)
	}
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			broker.Publish(context.Background(), message(chat.MessageID(id), "concurrent"))
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		req.NotNil(s)
		s.Close()
	}
	req.Equal(0, broker.Len())

	monitoring.Refresh()
	req.Equal(uint64(10), monitoring.GetLatest().MessagesPublished)
	req.Equal(0, monitoring.GetLatest().ActiveSinks)
}
