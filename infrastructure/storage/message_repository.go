//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix     = "msg:"
	messageSequence   = "seq:message"
	sequenceBandwidth = 100
)

type IMessageRepository interface {
	Append(ctx context.Context, author chat.Principal, text string) (chat.Message, error)
	ListAll(ctx context.Context) ([]chat.Message, error)
}

// MessageRepository is the append-only message log backed by BadgerDB.
// Appends are serialized: identifiers and timestamps follow commit order.
type MessageRepository struct {
	mu   sync.Mutex
	db   *badger.DB
	seq  *badger.Sequence
	log  *slog.Logger
	last time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequence), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("%w: message sequence: %v", errors.ErrStore, err)
	}
	repository := &MessageRepository{db: db, seq: seq, log: log}
	last, err := repository.lastMessage()
	if err != nil {
		_ = seq.Release()
		return nil, err
	}
	repository.last = last.CreatedAt
	return repository, nil
}

// Append assigns the next identifier, persists the message and returns it once
// the Badger transaction has committed.
// The key is formatted as "msg:{id_padded}" with 20-digit zero padding so a
// forward prefix scan yields creation order.
func (m *MessageRepository) Append(ctx context.Context, author chat.Principal, text string) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}

	n, err := m.seq.Next()
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: next id: %v", errors.ErrStore, err)
	}

	createdAt := time.Now().UTC()
	if createdAt.Before(m.last) {
		createdAt = m.last
	}
	message := chat.Message{
		// Badger sequences start at 0
		ID:        chat.MessageID(n + 1),
		Author:    author,
		Text:      text,
		CreatedAt: createdAt,
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ID), encodeMessage(message))
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: append: %v", errors.ErrStore, err)
	}
	m.last = createdAt
	m.log.Debug("Message appended", "id", message.ID, "author", message.Author)
	return message, nil
}

// ListAll returns every stored message in creation order.
func (m *MessageRepository) ListAll(ctx context.Context) ([]chat.Message, error) {
	var messages []chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", errors.ErrStore, err)
	}
	return messages, nil
}

// Close releases the leased identifiers. Unused ones are skipped on restart, never reused.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func (m *MessageRepository) lastMessage() (chat.Message, error) {
	var last chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix)
		// Seek past the highest possible padded id, then walk back
		it.Seek(append([]byte(messagePrefix), []byte("99999999999999999999")...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		return it.Item().Value(func(value []byte) error {
			var err error
			last, err = decodeMessage(value)
			return err
		})
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: last message: %v", errors.ErrStore, err)
	}
	return last, nil
}

func messageKey(id chat.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, uint64(id)))
}
