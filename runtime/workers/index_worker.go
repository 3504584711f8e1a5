package workers

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/index"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

// IndexWorker drains the index sink buffer into the message index.
// Messages are written in batches of at most batchSize, or after flushInterval.
type IndexWorker struct {
	log           *slog.Logger
	in            <-chan chat.Message
	index         index.IMessageIndex
	monitoring    *observability.MonitoringManager
	batchSize     int
	flushInterval time.Duration
	pending       []chat.Message
}

func NewIndexWorker(log *slog.Logger, in <-chan chat.Message, idx index.IMessageIndex,
	monitoring *observability.MonitoringManager, batchSize int, flushInterval time.Duration) *IndexWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &IndexWorker{
		log:           log,
		in:            in,
		index:         idx,
		monitoring:    monitoring,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run returns nil when ctx is done. A failed write is returned so the
// supervisor restarts the worker; the batch is kept and retried.
func (w *IndexWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			if err := w.flush(context.Background()); err != nil {
				w.log.Warn("Final index flush failed", "error", err)
			}
			return nil
		case message := <-w.in:
			w.pending = append(w.pending, message)
			if len(w.pending) >= w.batchSize {
				if err := w.flush(ctx); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := w.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *IndexWorker) drain() {
	for {
		select {
		case message := <-w.in:
			w.pending = append(w.pending, message)
		default:
			return
		}
	}
}

func (w *IndexWorker) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.index.Index(ctx, w.pending...); err != nil {
		return err
	}
	for range w.pending {
		w.monitoring.IncrIndexed()
	}
	w.log.Debug("Messages indexed", "count", len(w.pending))
	w.pending = w.pending[:0]
	return nil
}
