package models

import "time"

// RatelimitScopeAdmin keys the rate of the admin routes. Every other key
// names a survey endpoint whose default quota it overrides.
const RatelimitScopeAdmin = "admin"

// RatelimitConfig is one stored rate in limiter format, e.g. "5-M" or "100-H".
type RatelimitConfig struct {
	Scope     string    `json:"scope"`
	Rate      string    `json:"rate"`
	UpdatedAt time.Time `json:"updatedAt"`
}
