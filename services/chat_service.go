package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/infrastructure/index"
	"chat-relay/infrastructure/storage"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// IChatService is the gateway used by every transport.
// Each operation receives the principal resolved by the identity layer.
type IChatService interface {
	AddMessage(ctx context.Context, principal chat.Principal, text string) (chat.Message, error)
	ListMessages(ctx context.Context, principal chat.Principal) ([]chat.Message, error)
	Subscribe(principal chat.Principal) (*runtime.Session, error)
	SearchMessages(ctx context.Context, principal chat.Principal, query string, limit int) ([]chat.Message, error)
}

type ChatOptions struct {
	MaxContentLength int
	Backpressure     chat.Backpressure
}

type ChatService struct {
	// writeMu makes append+publish atomic, so publish order equals id order.
	writeMu    sync.Mutex
	repository storage.IMessageRepository
	broker     contract.IBroker
	index      index.IMessageIndex
	moderator  *moderation.Moderator
	monitoring *observability.MonitoringManager
	options    ChatOptions
	log        *slog.Logger
}

func NewChatService(log *slog.Logger, repository storage.IMessageRepository, broker contract.IBroker,
	idx index.IMessageIndex, moderator *moderation.Moderator,
	monitoring *observability.MonitoringManager, options ChatOptions) *ChatService {
	return &ChatService{
		repository: repository,
		broker:     broker,
		index:      idx,
		moderator:  moderator,
		monitoring: monitoring,
		options:    options,
		log:        log,
	}
}

// AddMessage stores a message then publishes it to every live subscriber.
// Nothing is published when the store fails.
func (s *ChatService) AddMessage(ctx context.Context, principal chat.Principal, text string) (chat.Message, error) {
	if !principal.Authenticated() {
		return chat.Message{}, errors.ErrUnauthenticated
	}
	cmd := chat.PostMessageCommand{Principal: principal, Text: text}.Normalized()
	if err := s.validate(cmd); err != nil {
		return chat.Message{}, err
	}
	if censored, words := s.moderator.Censor(cmd.Text); len(words) > 0 {
		s.log.Info("Message moderated", "author", principal, "words", len(words))
		cmd.Text = censored
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	message, err := s.repository.Append(ctx, cmd.Principal, cmd.Text)
	if err != nil {
		s.log.Error("Unable to store message", "author", principal, "error", err)
		if !goerrors.Is(err, errors.ErrStore) {
			err = fmt.Errorf("%w: %w", errors.ErrStore, err)
		}
		return chat.Message{}, err
	}
	s.broker.Publish(ctx, message)
	return message, nil
}

func (s *ChatService) validate(cmd chat.PostMessageCommand) error {
	if cmd.Text == "" {
		return errors.ErrEmptyText
	}
	if s.options.MaxContentLength > 0 && utf8.RuneCountInString(cmd.Text) > s.options.MaxContentLength {
		return fmt.Errorf("%w: max %d characters", errors.ErrTextTooLong, s.options.MaxContentLength)
	}
	return nil
}

// ListMessages returns the full history in creation order.
func (s *ChatService) ListMessages(ctx context.Context, principal chat.Principal) ([]chat.Message, error) {
	if !principal.Authenticated() {
		return nil, errors.ErrUnauthenticated
	}
	return s.repository.ListAll(ctx)
}

// Subscribe opens a live session. Only messages published after it returns are delivered.
func (s *ChatService) Subscribe(principal chat.Principal) (*runtime.Session, error) {
	session, err := runtime.NewSession(principal, s.broker, s.options.Backpressure, runtime.SessionHooks{
		OnDrop: s.monitoring.IncrDropped,
		OnClose: func(cause error) {
			s.monitoring.IncrSessionsClosed()
			if cause != nil {
				s.log.Warn("Session ended", "principal", principal, "cause", cause)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	s.monitoring.IncrSessionsOpened()
	s.log.Debug("Session opened", "principal", principal, "session_id", session.ID())
	return session, nil
}

// SearchMessages runs a full-text query over indexed messages.
// A limit outside (0, MaxSearchLimit] falls back to the default or the maximum.
func (s *ChatService) SearchMessages(ctx context.Context, principal chat.Principal, query string, limit int) ([]chat.Message, error) {
	if !principal.Authenticated() {
		return nil, errors.ErrUnauthenticated
	}
	cmd := chat.SearchMessagesCommand{Principal: principal, Terms: strings.TrimSpace(query), Limit: limit}
	if cmd.Terms == "" {
		return nil, errors.ErrEmptyQuery
	}
	switch {
	case cmd.Limit <= 0:
		cmd.Limit = DefaultSearchLimit
	case cmd.Limit > MaxSearchLimit:
		cmd.Limit = MaxSearchLimit
	}
	return s.index.Search(ctx, cmd.Terms, cmd.Limit)
}

// RebuildIndex indexes the whole stored history, used when the index does not persist.
func (s *ChatService) RebuildIndex(ctx context.Context) error {
	messages, err := s.repository.ListAll(ctx)
	if err != nil {
		return err
	}
	if err := s.index.Index(ctx, messages...); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Search index rebuilt with %d messages", len(messages)))
	return nil
}
