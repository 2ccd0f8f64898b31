package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageLength   = 50000
	MaxIdentifierRunes = 128
)

// ValidateMessage checks a user-supplied message body before it is accepted
// into the log or sent to the agent service.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, MaxMessageLength)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: message is not valid UTF-8", ErrInvalidInput)
	}
	return nil
}

// ValidateIdentifier checks caller-supplied session and project identifiers.
// An empty identifier is allowed; resolution is the caller's concern.
func ValidateIdentifier(id string) error {
	if id == "" {
		return nil
	}
	if utf8.RuneCountInString(id) > MaxIdentifierRunes {
		return fmt.Errorf("%w: identifier exceeds %d characters", ErrInvalidInput, MaxIdentifierRunes)
	}
	for _, r := range id {
		if !identifierRune(r) {
			return fmt.Errorf("%w: identifier contains %q", ErrInvalidInput, r)
		}
	}
	return nil
}

func identifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == ':' || r == '.':
		return true
	}
	return false
}
