package workers

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestIndexWorker_Flushes_Full_Batch(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	idx := mocks.NewMockIMessageIndex(ctrl)
	monitoring := observability.NewMonitoringManager(slog.Default())
	in := make(chan chat.Message, 4)

	flushed := make(chan []chat.Message, 1)
	idx.EXPECT().Index(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, messages ...chat.Message) error {
			flushed <- append([]chat.Message(nil), messages...)
			return nil
		}).AnyTimes()

	worker := NewIndexWorker(slog.Default(), in, idx, monitoring, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When two messages arrive
	in <- chat.Message{ID: 1}
	in <- chat.Message{ID: 2}

	// Then they are indexed as one batch
	select {
	case batch := <-flushed:
		req.Len(batch, 2)
		req.Equal(chat.MessageID(1), batch[0].ID)
	case <-time.After(time.Second):
		req.Fail("batch should have been flushed")
	}
}

func TestIndexWorker_Flushes_On_Interval(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	idx := mocks.NewMockIMessageIndex(ctrl)
	in := make(chan chat.Message, 4)

	flushed := make(chan struct{}, 1)
	idx.EXPECT().Index(gomock.Any(), chat.Message{ID: 9}).
		DoAndReturn(func(ctx context.Context, messages ...chat.Message) error {
			flushed <- struct{}{}
			return nil
		})

	worker := NewIndexWorker(slog.Default(), in, idx, nil, 100, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	in <- chat.Message{ID: 9}

	select {
	case <-flushed:
	case <-time.After(time.Second):
		req.Fail("pending message should be flushed by the ticker")
	}
}

func TestIndexWorker_Returns_Error_And_Keeps_Batch(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	idx := mocks.NewMockIMessageIndex(ctrl)
	in := make(chan chat.Message, 1)

	gomock.InOrder(
		idx.EXPECT().Index(gomock.Any(), chat.Message{ID: 1}).Return(errors.ErrStore),
		idx.EXPECT().Index(gomock.Any(), chat.Message{ID: 1}).Return(nil),
	)

	worker := NewIndexWorker(slog.Default(), in, idx, nil, 1, time.Hour)
	in <- chat.Message{ID: 1}

	// The first run fails on write
	err := worker.Run(context.Background())
	req.ErrorIs(err, errors.ErrStore)

	// The restarted run flushes the kept batch on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NoError(worker.Run(ctx))
}
