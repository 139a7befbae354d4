package validation

import (
	"errors"
	"regexp"
	"strings"
)

const (
	maxEmailLength       = 254
	minEmailLength       = 6
	maxEmailLocalLength  = 64
	maxEmailDomainLength = 255
	minEmailDomainLength = 4
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

// ValidateEmail checks an address in layers so that the error names the
// first broken rule, and returns the trimmed, lowercased form.
func ValidateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", errors.New("Email cannot be empty")
	}
	if len(email) > maxEmailLength {
		return "", errors.New("Email is too long (max 254 characters)")
	}
	if len(email) < minEmailLength {
		return "", errors.New("Email is too short (minimum 6 characters)")
	}
	if strings.Count(email, "@") != 1 {
		return "", errors.New("Email must contain exactly one @ symbol")
	}

	local, domain, _ := strings.Cut(email, "@")
	if local == "" {
		return "", errors.New("Email local part cannot be empty")
	}
	if len(local) > maxEmailLocalLength {
		return "", errors.New("Email local part is too long (max 64 characters)")
	}
	if domain == "" {
		return "", errors.New("Email domain part cannot be empty")
	}
	if len(domain) > maxEmailDomainLength {
		return "", errors.New("Email domain part is too long (max 255 characters)")
	}
	if len(domain) < minEmailDomainLength {
		return "", errors.New("Email domain part is too short (minimum 4 characters, e.g., a.co)")
	}

	if !emailPattern.MatchString(email) {
		return "", errors.New("Invalid email format")
	}

	dot := strings.LastIndex(domain, ".")
	if dot < 0 {
		return "", errors.New("Email domain must contain a top-level domain (e.g., .com, .co)")
	}
	if len(domain)-dot-1 < 2 {
		return "", errors.New("Email top-level domain must be at least 2 characters")
	}

	return strings.ToLower(email), nil
}
