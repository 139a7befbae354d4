package models

import "time"

// CorsConfig is the operator managed CORS policy for the survey API.
type CorsConfig struct {
	AllowedOrigins   []string  `json:"allowedOrigins"`
	AllowCredentials bool      `json:"allowCredentials"`
	MaxAge           int       `json:"maxAge"` // Preflight cache, seconds
	UpdatedAt        time.Time `json:"updatedAt"`
}
