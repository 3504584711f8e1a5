package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"sync"

	"github.com/google/uuid"
)

// Session is one live subscriber bound to the broker.
// Published messages accumulate in an ordered backlog that Next drains.
type Session struct {
	id           string
	principal    chat.Principal
	broker       contract.IBroker
	backpressure chat.Backpressure
	hooks        SessionHooks

	mu      sync.Mutex
	state   chat.SessionState
	backlog []chat.Message
	dropped uint64
	cause   error

	wake chan struct{} // buffered(1), coalesces notifications
	done chan struct{} // closed exactly once when the session ends
}

// SessionHooks lets the owner observe drops and closure. Nil funcs are ignored.
// Hooks run under the session lock and must not call back into the session.
type SessionHooks struct {
	OnDrop  func()
	OnClose func(cause error)
}

// NewSession authorizes the principal and registers the session with the broker.
// No registration happens for an anonymous principal.
func NewSession(principal chat.Principal, broker contract.IBroker,
	backpressure chat.Backpressure, hooks SessionHooks) (*Session, error) {
	if !principal.Authenticated() {
		return nil, errors.ErrUnauthenticated
	}
	s := &Session{
		id:           uuid.NewString(),
		principal:    principal,
		broker:       broker,
		backpressure: backpressure,
		hooks:        hooks,
		state:        chat.SessionCreated,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if err := broker.Register(s); err != nil {
		s.state = chat.SessionClosed
		s.cause = err
		close(s.done)
		return nil, err
	}

	s.mu.Lock()
	if s.state == chat.SessionCreated {
		s.state = chat.SessionActive
	}
	s.mu.Unlock()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Principal() chat.Principal { return s.principal }

func (s *Session) State() chat.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns why the session ended: nil for an explicit Close,
// ErrQueueOverflow or ErrBrokerClosed otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Dropped returns how many messages the drop-oldest policy discarded.
func (s *Session) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Consume enqueues a published message. It never blocks.
func (s *Session) Consume(_ context.Context, message chat.Message) error {
	s.mu.Lock()
	if s.state == chat.SessionClosed {
		s.mu.Unlock()
		return errors.ErrSessionClosed
	}

	if s.backpressure.Bounded() && len(s.backlog) >= s.backpressure.Capacity {
		switch s.backpressure.Policy {
		case chat.DropOldest:
			s.backlog[0] = chat.Message{}
			s.backlog = s.backlog[1:]
			s.dropped++
			if s.hooks.OnDrop != nil {
				s.hooks.OnDrop()
			}
		case chat.Disconnect:
			s.closeLocked(errors.ErrQueueOverflow)
			s.mu.Unlock()
			return errors.ErrQueueOverflow
		}
	}

	s.backlog = append(s.backlog, message)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Next returns the oldest queued message, waiting until one is published.
// It returns ErrSessionClosed once the session is closed, or ctx.Err() if ctx
// ends first; in the latter case the session stays open.
func (s *Session) Next(ctx context.Context) (chat.Message, error) {
	for {
		s.mu.Lock()
		if s.state == chat.SessionClosed {
			s.mu.Unlock()
			return chat.Message{}, errors.ErrSessionClosed
		}
		if len(s.backlog) > 0 {
			message := s.backlog[0]
			s.backlog[0] = chat.Message{}
			s.backlog = s.backlog[1:]
			remaining := len(s.backlog)
			if remaining == 0 {
				s.backlog = nil
			}
			s.mu.Unlock()
			if remaining > 0 {
				// Another waiter may have lost the coalesced wake-up.
				s.notify()
			}
			return message, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
		case <-ctx.Done():
			return chat.Message{}, ctx.Err()
		}
	}
}

// Close ends the session and unregisters it. It is idempotent and safe to
// call from any goroutine, including while another one waits in Next.
func (s *Session) Close() {
	s.terminate(nil)
	s.broker.Unregister(s)
}

func (s *Session) terminate(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(cause)
}

func (s *Session) closeLocked(cause error) {
	if s.state == chat.SessionClosed {
		return
	}
	s.state = chat.SessionClosed
	s.cause = cause
	s.backlog = nil
	close(s.done)
	if s.hooks.OnClose != nil {
		s.hooks.OnClose(cause)
	}
}

func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
