//go:build tools

// Package tools pins the mockgen version used by go:generate directives.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
