//go:generate go run go.uber.org/mock/mockgen -source=message_index.go -destination=../../mocks/mock_message_index.go -package=mocks
package index

import (
	"chat-relay/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
)

const (
	fieldAuthor    = "author"
	fieldText      = "text"
	fieldCreatedAt = "created_at"
	idField        = "_id"
)

type IMessageIndex interface {
	Index(ctx context.Context, messages ...chat.Message) error
	Search(ctx context.Context, terms string, limit int) ([]chat.Message, error)
}

// MessageIndex is a full-text index of posted messages.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// NewMessageIndex opens an index under path, or an in-memory one when path is empty.
func NewMessageIndex(path string, log *slog.Logger) (*MessageIndex, error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

// Index adds or replaces the documents of the given messages in one batch.
func (m *MessageIndex) Index(ctx context.Context, messages ...chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := bluge.NewBatch()
	for _, message := range messages {
		doc := toDocument(message)
		batch.Update(doc.ID(), doc)
	}
	if err := m.writer.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	return nil
}

// Search returns the newest limit messages whose text matches terms, in creation order.
func (m *MessageIndex) Search(ctx context.Context, terms string, limit int) ([]chat.Message, error) {
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			m.log.Warn("Unable to close index reader", "error", err)
		}
	}()

	query := bluge.NewMatchQuery(terms).SetField(fieldText)
	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"-" + idField})
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var messages []chat.Message
	match, err := iterator.Next()
	for err == nil && match != nil {
		message, visitErr := fromMatch(match)
		if visitErr != nil {
			return nil, visitErr
		}
		messages = append(messages, message)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("search iterate: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
	return messages, nil
}

func (m *MessageIndex) Close() error {
	return m.writer.Close()
}

func toDocument(message chat.Message) *bluge.Document {
	doc := bluge.NewDocument(documentID(message.ID))
	doc.AddField(bluge.NewKeywordField(fieldAuthor, string(message.Author)).StoreValue())
	doc.AddField(bluge.NewTextField(fieldText, message.Text).StoreValue())
	doc.AddField(bluge.NewKeywordField(fieldCreatedAt, message.CreatedAt.UTC().Format(time.RFC3339Nano)).StoreValue())
	return doc
}

func fromMatch(match *search.DocumentMatch) (chat.Message, error) {
	var (
		message  chat.Message
		parseErr error
	)
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		switch field {
		case idField:
			id, err := strconv.ParseUint(string(value), 10, 64)
			if err != nil {
				parseErr = err
				return false
			}
			message.ID = chat.MessageID(id)
		case fieldAuthor:
			message.Author = chat.Principal(value)
		case fieldText:
			message.Text = string(value)
		case fieldCreatedAt:
			createdAt, err := time.Parse(time.RFC3339Nano, string(value))
			if err != nil {
				parseErr = err
				return false
			}
			message.CreatedAt = createdAt
		}
		return true
	})
	if err != nil {
		return chat.Message{}, err
	}
	if parseErr != nil {
		return chat.Message{}, fmt.Errorf("decode indexed message: %w", parseErr)
	}
	return message, nil
}

// documentID is zero-padded so lexical and numeric order agree.
func documentID(id chat.MessageID) string {
	return fmt.Sprintf("%020d", uint64(id))
}
