package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength bounds a single chat message, in runes.
const MaxMessageLength = 4000

var (
	// IDRegex validates user, conversation and call identifiers
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// ValidateID validates an opaque identifier such as a user or conversation id.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > 128 {
		return fmt.Errorf("%s is too long (max 128 characters)", fieldName)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateMessageContent validates chat message text
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content contains invalid characters")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return fmt.Errorf("content is too long (max %d characters)", MaxMessageLength)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
