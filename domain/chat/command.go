package chat

import "strings"

type PostMessageCommand struct {
	Principal Principal
	Text      string
}

// Normalized returns the command with surrounding whitespace removed from the text.
func (c PostMessageCommand) Normalized() PostMessageCommand {
	c.Text = strings.TrimSpace(c.Text)
	return c
}

type SearchMessagesCommand struct {
	Principal Principal
	Terms     string
	Limit     int
}
