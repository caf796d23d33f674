package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxSessionIDLength is the longest accepted session identifier, in bytes.
	MaxSessionIDLength = 128

	// MaxMessageLength is the longest accepted chat message, in bytes.
	MaxMessageLength = 100000
)

// ValidateSessionID validates a client-chosen session identifier.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > MaxSessionIDLength {
		return errors.New("session ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("session ID must be valid UTF-8")
	}
	return nil
}

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateSearchTerm validates a catalog search term.
func ValidateSearchTerm(term string) error {
	if len(term) == 0 {
		return errors.New("search term cannot be empty")
	}
	if len(term) > 256 {
		return errors.New("search term exceeds maximum length")
	}
	if !utf8.ValidString(term) {
		return errors.New("search term must be valid UTF-8")
	}
	return nil
}
