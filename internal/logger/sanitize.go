package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxSessionIDLength covers "session_" plus a UUID with room for junk input
	MaxSessionIDLength = 64
	// MaxIPLength fits an IPv6 address with zone
	MaxIPLength = 64
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
)

// SanitizePath sanitizes a URL path for safe logging
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeString removes control characters, repairs UTF-8 and truncates to
// maxLength (MaxGeneralStringLength when maxLength <= 0).
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	s = filterRunes(s)
	if len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}

// SanitizeError sanitizes an error message for safe logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeSessionID sanitizes a client supplied session id.
func SanitizeSessionID(id string) string {
	return SanitizeString(id, MaxSessionIDLength)
}

// SanitizeIP sanitizes a client identity or IP address.
func SanitizeIP(ip string) string {
	return SanitizeString(ip, MaxIPLength)
}

// MaskEmail keeps the first character of the local part and the domain:
// "test@example.com" becomes "t***@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	first, _ := utf8.DecodeRuneInString(email)
	return SanitizeString(string(first)+"***"+email[at:], MaxGeneralStringLength)
}

// filterRunes validates UTF-8 and drops control characters, keeping spaces and tabs.
func filterRunes(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
