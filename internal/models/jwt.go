package models

import "time"

// AdminClaims are the claims carried by an admin dashboard token
type AdminClaims struct {
	Subject   string    `json:"sub"` // Operator name
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}
