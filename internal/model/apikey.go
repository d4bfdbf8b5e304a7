// Package model defines domain entities for the application.
package model

import "time"

// APIKeyTTL is the absolute lifetime of an API key, counted from issuance.
// Keys are never renewed.
const APIKeyTTL = 10 * time.Minute

// APIKey represents an issued API key.
type APIKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Key       string    `json:"-"` // Never serialize
	CreatedAt time.Time `json:"createdAt"`
}

// ExpiresAt returns the instant after which the key is no longer valid.
func (k *APIKey) ExpiresAt() time.Time {
	return k.CreatedAt.Add(APIKeyTTL)
}

// IsExpired reports whether the key is past its TTL at now.
// A key is still valid at exactly CreatedAt + APIKeyTTL.
func (k *APIKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt())
}

// AuthContext holds authenticated request context.
// This is injected into the request context by auth middleware.
type AuthContext struct {
	KeyID  string
	UserID string
}

// LoginRequest represents a login attempt.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse includes the plaintext key (shown only once).
type LoginResponse struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}
