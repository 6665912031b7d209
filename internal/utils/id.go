package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier suitable for messages and sessions.
func NewID() string {
	return uuid.NewString()
}

// NewClientID returns a correlation token for an optimistic send.
// The "c-" prefix keeps it visibly distinct from server-assigned ids.
func NewClientID() string {
	return "c-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
