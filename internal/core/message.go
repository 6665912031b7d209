package core

import (
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/wiredm/internal/auth"
)

// validateText rejects blank text and text longer than maxLen runes (0 disables the limit).
func validateText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		return ErrTextTooLong
	}
	return nil
}

// validatePeer rejects a missing, malformed or self-addressed counterpart.
func validatePeer(userID, peerID string) error {
	switch {
	case strings.TrimSpace(peerID) == "":
		return ErrNoPeer
	case !auth.ValidUserID(peerID) || !auth.ValidUserID(userID):
		return ErrInvalidPeer
	case peerID == userID:
		return ErrSelfMessage
	default:
		return nil
	}
}
