// Package request holds helpers for reading client identity and bodies.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Unknown is returned by ClientIdentity when no forwarding header is present.
const Unknown = "unknown"

var (
	// ErrBodyTooLarge is matched by errors.Is on a *BodyTooLargeError.
	ErrBodyTooLarge = errors.New("request body too large")
	ErrInvalidJSON  = errors.New("Invalid JSON format")
)

// BodyTooLargeError reports the offending size.
type BodyTooLargeError struct {
	Size int64
	Max  int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("Request body too large: %d bytes (max %d bytes)", e.Size, e.Max)
}

func (e *BodyTooLargeError) Unwrap() error {
	return ErrBodyTooLarge
}

// ClientIdentity derives the rate limit identity from proxy headers:
// the first X-Forwarded-For entry, then X-Real-IP, then CF-Connecting-IP.
// It returns Unknown when none is set.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	return Unknown
}

// ClientIP is ClientIdentity with a fallback to the socket address host.
func ClientIP(r *http.Request) string {
	if id := ClientIdentity(r); id != Unknown {
		return id
	}
	return RemoteHost(r)
}

// RemoteHost returns the host part of r.RemoteAddr, or Unknown.
func RemoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return Unknown
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DecodeJSON reads at most maxBytes of r's body into v. The declared
// Content-Length is checked before reading and the measured length after.
func DecodeJSON(r *http.Request, maxBytes int64, v any) error {
	if r.ContentLength > maxBytes {
		return &BodyTooLargeError{Size: r.ContentLength, Max: maxBytes}
	}
	if r.Body == nil {
		return ErrInvalidJSON
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return &BodyTooLargeError{Size: mbe.Limit + 1, Max: maxBytes}
		}
		return fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return &BodyTooLargeError{Size: int64(len(body)), Max: maxBytes}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return ErrInvalidJSON
	}
	return nil
}
