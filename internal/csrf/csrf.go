// Package csrf implements stateless double-submit cookie protection.
// A request is valid when the csrf-token cookie and the X-CSRF-Token header
// carry the same value; in production the Origin or Referer must also name
// the request host.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/benvon/smart-survey/internal/config"
)

const (
	CookieName = "csrf-token"
	HeaderName = "X-CSRF-Token"

	tokenBytes   = 32
	cookieMaxAge = 24 * 60 * 60
)

var (
	ErrMissingOrigin   = errors.New("Missing Origin or Referer header")
	ErrOriginMismatch  = errors.New("Origin header does not match host")
	ErrInvalidOrigin   = errors.New("Invalid Origin header format")
	ErrRefererMismatch = errors.New("Referer header does not match host")
	ErrInvalidReferer  = errors.New("Invalid Referer header format")
	ErrMissingToken    = errors.New("Missing CSRF token")
	ErrTokenMismatch   = errors.New("CSRF token mismatch")
)

// Guard issues and checks tokens. It holds no token state.
type Guard struct {
	env config.Environment
}

// NewGuard creates a Guard. Origin checks and Secure cookies are enabled in production only.
func NewGuard(env config.Environment) *Guard {
	return &Guard{env: env}
}

// IssueToken returns a new URL safe token carrying 256 bits of entropy.
func (g *Guard) IssueToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetCookie writes token as the csrf-token cookie. The cookie is readable by
// client script so the page can echo it back in the header.
func (g *Guard) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: false,
		Secure:   g.env.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

// Validate returns nil when r passes, or one of the package errors.
// Safe methods always pass.
func (g *Guard) Validate(r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}

	if g.env.IsProduction() {
		if err := checkSameOrigin(r); err != nil {
			return err
		}
	}

	var cookieToken string
	if c, err := r.Cookie(CookieName); err == nil {
		cookieToken = c.Value
	}
	headerToken := r.Header.Get(HeaderName)
	if cookieToken == "" || headerToken == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// checkSameOrigin prefers Origin and only consults Referer when Origin is absent.
func checkSameOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	referer := r.Header.Get("Referer")
	if origin == "" && referer == "" {
		return ErrMissingOrigin
	}

	if origin != "" {
		host, ok := urlHost(origin)
		if !ok {
			return ErrInvalidOrigin
		}
		if host != r.Host {
			return ErrOriginMismatch
		}
		return nil
	}

	host, ok := urlHost(referer)
	if !ok {
		return ErrInvalidReferer
	}
	if host != r.Host {
		return ErrRefererMismatch
	}
	return nil
}

func urlHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Host, true
}
