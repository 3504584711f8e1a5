package storage

import (
	"fmt"
	"strings"
)

// Describe renders a raw Badger record for the debug inspector.
// It returns an empty kind for keys it does not own. Password hashes are never shown.
func Describe(key string, val []byte) (kind, detail string) {
	switch {
	case strings.HasPrefix(key, messagePrefix):
		m, err := decodeMessage(val)
		if err != nil {
			return "MESSAGE", "Error: decode failed"
		}
		return "MESSAGE", fmt.Sprintf("#%d %s: %s", m.ID, m.Author, m.Text)
	case strings.HasPrefix(key, userPrefix):
		u, err := decodeUser(val)
		if err != nil {
			return "USER", "Error: decode failed"
		}
		return "USER", fmt.Sprintf("%s %v", u.Username, u.Roles)
	case key == messageSequence:
		return "SEQUENCE", ""
	default:
		return "", ""
	}
}
