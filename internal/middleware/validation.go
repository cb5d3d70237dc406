package middleware

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a backend conversation id.
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateModelName validates a model name.
func ValidateModelName(name string) error {
	if name == "" {
		return errors.New("model cannot be empty")
	}
	if len(name) > 64 {
		return errors.New("model exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("model must be valid UTF-8")
	}
	return nil
}
