package ratelimit

import (
	"fmt"
	"sort"
	"time"

	"github.com/ulule/limiter/v3"
)

// Endpoint names used as rate limit partitions.
const (
	EndpointCSRFToken    = "csrf-token"
	EndpointSession      = "session"
	EndpointSubmit       = "submit"
	EndpointDropout      = "dropout"
	EndpointImageRating  = "image-rating"
	EndpointEmail        = "email"
	EndpointImageDropout = "image-dropout"
)

// Policy is a fixed window quota.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Policies maps endpoint names to quotas. Endpoints that are absent are not throttled.
type Policies map[string]Policy

// DefaultPolicies returns the per endpoint quotas used by the survey API.
func DefaultPolicies() Policies {
	return Policies{
		EndpointCSRFToken:    {MaxRequests: 10, Window: time.Minute},
		EndpointSession:      {MaxRequests: 5, Window: time.Minute},
		EndpointSubmit:       {MaxRequests: 5, Window: time.Minute},
		EndpointDropout:      {MaxRequests: 20, Window: time.Minute},
		EndpointImageRating:  {MaxRequests: 30, Window: time.Minute},
		EndpointEmail:        {MaxRequests: 5, Window: time.Minute},
		EndpointImageDropout: {MaxRequests: 20, Window: time.Minute},
	}
}

// unknownClientPolicy is the shared bucket for unidentifiable clients outside production.
var unknownClientPolicy = Policy{MaxRequests: 1, Window: time.Minute}

// Names returns the endpoint names in sorted order.
func (p Policies) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePolicy reads a rate in limiter format such as "5-M" or "100-H".
func ParsePolicy(rate string) (Policy, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Policy{}, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	if r.Limit < 1 {
		return Policy{}, fmt.Errorf("parse rate %q: limit must be positive", rate)
	}
	return Policy{MaxRequests: int(r.Limit), Window: r.Period}, nil
}

// String formats p in limiter format when the window is a whole unit.
func (p Policy) String() string {
	switch p.Window {
	case time.Second:
		return fmt.Sprintf("%d-S", p.MaxRequests)
	case time.Minute:
		return fmt.Sprintf("%d-M", p.MaxRequests)
	case time.Hour:
		return fmt.Sprintf("%d-H", p.MaxRequests)
	case 24 * time.Hour:
		return fmt.Sprintf("%d-D", p.MaxRequests)
	}
	return fmt.Sprintf("%d per %s", p.MaxRequests, p.Window)
}

// Merge returns a copy of p with overrides applied. Overrides for endpoints
// not present in p are ignored.
func (p Policies) Merge(overrides Policies) Policies {
	out := make(Policies, len(p))
	for name, policy := range p {
		out[name] = policy
	}
	for name, policy := range overrides {
		if _, ok := out[name]; ok {
			out[name] = policy
		}
	}
	return out
}
