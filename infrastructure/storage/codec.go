package storage

import (
	"chat-relay/domain/chat"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Values are stored in protobuf wire format so records stay readable by
// any protobuf decoder declaring the same field numbers.
const (
	messageFieldID        protowire.Number = 1
	messageFieldAuthor    protowire.Number = 2
	messageFieldText      protowire.Number = 3
	messageFieldCreatedAt protowire.Number = 4

	userFieldID           protowire.Number = 1
	userFieldUsername     protowire.Number = 2
	userFieldPasswordHash protowire.Number = 3
	userFieldRoles        protowire.Number = 4
	userFieldCreatedAt    protowire.Number = 5
)

func encodeMessage(m chat.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, messageFieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ID))
	b = protowire.AppendTag(b, messageFieldAuthor, protowire.BytesType)
	b = protowire.AppendString(b, string(m.Author))
	b = protowire.AppendTag(b, messageFieldText, protowire.BytesType)
	b = protowire.AppendString(b, m.Text)
	b = protowire.AppendTag(b, messageFieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	return b
}

func decodeMessage(b []byte) (chat.Message, error) {
	var m chat.Message
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == messageFieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ID = chat.MessageID(v)
			return n, nil
		case num == messageFieldAuthor && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Author = chat.Principal(v)
			return n, nil
		case num == messageFieldText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Text = v
			return n, nil
		case num == messageFieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.CreatedAt = time.Unix(0, int64(v)).UTC()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return m, err
}

func encodeUser(u User) []byte {
	var b []byte
	b = protowire.AppendTag(b, userFieldID, protowire.BytesType)
	b = protowire.AppendString(b, u.ID)
	b = protowire.AppendTag(b, userFieldUsername, protowire.BytesType)
	b = protowire.AppendString(b, u.Username)
	b = protowire.AppendTag(b, userFieldPasswordHash, protowire.BytesType)
	b = protowire.AppendString(b, u.PasswordHash)
	for _, role := range u.Roles {
		b = protowire.AppendTag(b, userFieldRoles, protowire.BytesType)
		b = protowire.AppendString(b, role)
	}
	b = protowire.AppendTag(b, userFieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.CreatedAt.Unix()))
	return b
}

func decodeUser(b []byte) (User, error) {
	var u User
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			switch num {
			case userFieldID:
				u.ID = v
			case userFieldUsername:
				u.Username = v
			case userFieldPasswordHash:
				u.PasswordHash = v
			case userFieldRoles:
				u.Roles = append(u.Roles, v)
			}
			return n, nil
		}
		if num == userFieldCreatedAt && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			u.CreatedAt = time.Unix(int64(v), 0).UTC()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return u, err
}

// walkFields iterates over the top-level fields of a wire-encoded record.
// fn consumes the value following the tag and returns the consumed length.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
