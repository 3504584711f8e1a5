// Package runtime holds the in-process delivery engine: the broker registry
// of live sinks and the subscription sessions reading from it.
// It contains no transport or storage logic.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
)

// terminator is implemented by sinks the broker must close on shutdown.
type terminator interface {
	terminate(cause error)
}

// Broker is the process-wide registry of active sinks.
// Sinks are keyed by identity, so they must be comparable (pointers in practice).
type Broker struct {
	// publishMu serializes Publish so every sink observes the same order.
	publishMu  sync.Mutex
	mu         sync.RWMutex
	log        *slog.Logger
	sinks      map[contract.EventSink]struct{}
	closed     bool
	monitoring *observability.MonitoringManager
}

func NewBroker(log *slog.Logger, monitoring *observability.MonitoringManager) *Broker {
	b := &Broker{
		log:        log,
		sinks:      make(map[contract.EventSink]struct{}),
		monitoring: monitoring,
	}
	monitoring.TrackActiveSinks(b.Len)
	return b
}

// Register adds a sink to the active set.
// Once Register returns, the sink receives every subsequently published message.
func (b *Broker) Register(sink contract.EventSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrBrokerClosed
	}
	b.sinks[sink] = struct{}{}
	b.log.Debug("Sink registered", "active", len(b.sinks))
	return nil
}

// Unregister removes a sink. Unknown sinks are ignored.
// It waits for any in-flight Publish, so no delivery reaches the sink after it returns.
func (b *Broker) Unregister(sink contract.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sinks[sink]; !ok {
		return
	}
	delete(b.sinks, sink)
	b.log.Debug("Sink unregistered", "active", len(b.sinks))
}

// Publish hands the message to every sink registered at the time of the call.
// A failing sink never prevents delivery to the others; sinks that reported
// a terminal error are removed once the delivery round is over.
func (b *Broker) Publish(ctx context.Context, message chat.Message) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.monitoring.IncrPublished()
	failed := b.deliverAll(ctx, message)
	for _, sink := range failed {
		b.Unregister(sink)
	}
}

func (b *Broker) deliverAll(ctx context.Context, message chat.Message) []contract.EventSink {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var failed []contract.EventSink
	for sink := range b.sinks {
		err := b.deliver(ctx, sink, message)
		if err == nil {
			b.monitoring.IncrDelivered()
			continue
		}
		b.monitoring.IncrSinkFailures()
		b.log.Warn("Delivery failed", "message_id", message.ID, "error", err)
		if goerrors.Is(err, errors.ErrSessionClosed) || goerrors.Is(err, errors.ErrQueueOverflow) {
			failed = append(failed, sink)
		}
	}
	return failed
}

func (b *Broker) deliver(ctx context.Context, sink contract.EventSink, message chat.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sink panicked: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return sink.Consume(ctx, message)
}

// Shutdown closes every registered session and rejects further registrations.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sinks := make([]contract.EventSink, 0, len(b.sinks))
	for sink := range b.sinks {
		sinks = append(sinks, sink)
	}
	b.sinks = make(map[contract.EventSink]struct{})
	b.mu.Unlock()

	for _, sink := range sinks {
		if t, ok := sink.(terminator); ok {
			t.terminate(errors.ErrBrokerClosed)
		}
	}
	b.log.Info(fmt.Sprintf("Broker shut down, %d sinks released", len(sinks)))
}

func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}
