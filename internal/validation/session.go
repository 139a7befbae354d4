package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/benvon/smart-survey/internal/models"
)

const (
	minSessionIDLength = 37
	maxSessionIDLength = 50
)

var uuidV4Pattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// IsValidSessionID reports whether id is "session_" followed by a v4 UUID.
func IsValidSessionID(id string) bool {
	if len(id) < minSessionIDLength || len(id) > maxSessionIDLength {
		return false
	}
	rest, ok := strings.CutPrefix(id, models.SessionIDPrefix)
	if !ok {
		return false
	}
	return uuidV4Pattern.MatchString(rest)
}

// ValidateSessionID returns a client facing error for a missing or malformed session id.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("Session ID is required")
	}
	if !IsValidSessionID(id) {
		return errors.New("Invalid session ID format")
	}
	return nil
}
