// Package auth issues and verifies HS256 admin tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	Issuer   = "smart-survey"
	Audience = "admin"

	// DefaultTTL is the lifetime of tokens minted by the configure CLI.
	DefaultTTL = 12 * time.Hour
)

// ErrNoSecret is returned when no signing secret is configured.
var ErrNoSecret = errors.New("admin token secret is not configured")

// TokenIssuer mints admin tokens.
type TokenIssuer struct {
	key []byte
	now func() time.Time
}

// Verifier checks admin tokens.
type Verifier struct {
	key []byte
	now func() time.Time
}

// Option configures a TokenIssuer or Verifier clock.
type Option func(*func() time.Time)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *func() time.Time) {
		*f = now
	}
}

// NewTokenIssuer creates a TokenIssuer signing with secret.
func NewTokenIssuer(secret string, opts ...Option) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	i := &TokenIssuer{key: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(&i.now)
	}
	return i, nil
}

// Issue returns a signed token for subject valid for ttl.
func (i *TokenIssuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := i.now()
	tok, err := jwt.NewBuilder().
		Issuer(Issuer).
		Audience([]string{Audience}).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.key))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// NewVerifier creates a Verifier for tokens signed with secret.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	v := &Verifier{key: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(&v.now)
	}
	return v, nil
}

// Verify parses tokenString and checks signature, issuer, audience and lifetime.
func (v *Verifier) Verify(tokenString string) (*models.AdminClaims, error) {
	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	if tok.Subject() == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}

	return &models.AdminClaims{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		Audience:  Audience,
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}, nil
}
