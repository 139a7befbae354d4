// Package ratelimit implements per endpoint, per client fixed window quotas.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benvon/smart-survey/internal/config"
)

// UnknownIdentity is the client identity used when none can be derived.
const UnknownIdentity = "unknown"

// DenyReason explains a rejected Decision.
type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyQuota        DenyReason = "quota_exceeded"
	DenyUnidentified DenyReason = "unidentified_client"
)

// Decision is the outcome of a Check. Quota exhaustion is reported here,
// never as an error.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Throttled is false for endpoints without a policy.
	Throttled  bool
	Limit      int
	Window     time.Duration
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

// ResetUnix returns ResetAt as unix seconds, rounded up.
func (d Decision) ResetUnix() int64 {
	if d.ResetAt.IsZero() {
		return 0
	}
	ms := d.ResetAt.UnixMilli()
	return (ms + 999) / 1000
}

// Limiter applies Policies to client identities using a Store.
type Limiter struct {
	store Store
	env   config.Environment
	now   func() time.Time

	mu       sync.RWMutex
	policies Policies
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPolicies replaces DefaultPolicies.
func WithPolicies(p Policies) Option {
	return func(l *Limiter) {
		l.policies = p
	}
}

// WithLimiterClock replaces time.Now for retry-after arithmetic.
func WithLimiterClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter. env decides how unidentifiable clients are treated:
// production rejects them, development funnels them into one shared bucket
// of one request per minute per endpoint.
func New(store Store, env config.Environment, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policies: DefaultPolicies(),
		env:      env,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policies returns a copy of the active policies.
func (l *Limiter) Policies() Policies {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(Policies, len(l.policies))
	for name, p := range l.policies {
		out[name] = p
	}
	return out
}

// SetPolicies replaces the active policies. Counters already open keep
// their window; the new quota applies from the next request.
func (l *Limiter) SetPolicies(p Policies) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies = p
}

// Check counts one request from identity against endpoint's policy.
// A store failure returns an allowing Decision together with the error so
// the caller can log it and fail open.
func (l *Limiter) Check(ctx context.Context, endpoint, identity string) (Decision, error) {
	l.mu.RLock()
	policy, ok := l.policies[endpoint]
	l.mu.RUnlock()
	if !ok {
		return Decision{Allowed: true}, nil
	}

	if identity == "" || identity == UnknownIdentity {
		if l.env.IsProduction() {
			return Decision{
				Allowed:   false,
				Reason:    DenyUnidentified,
				Throttled: true,
				Limit:     policy.MaxRequests,
				Window:    policy.Window,
			}, nil
		}
		identity = UnknownIdentity
		policy = unknownClientPolicy
	}

	count, resetAt, err := l.store.Increment(ctx, endpoint+":"+identity, policy.Window)
	if err != nil {
		return Decision{Allowed: true, Throttled: true, Limit: policy.MaxRequests, Window: policy.Window},
			fmt.Errorf("check rate limit for %s: %w", endpoint, err)
	}

	d := Decision{
		Allowed:   count <= policy.MaxRequests,
		Throttled: true,
		Limit:     policy.MaxRequests,
		Window:    policy.Window,
		Remaining: max(0, policy.MaxRequests-count),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.Reason = DenyQuota
		d.RetryAfter = retryAfterSeconds(resetAt, l.now())
	}
	return d, nil
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
