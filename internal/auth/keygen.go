package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
)

// GenerateKey creates a new API key value.
// Keys are random (version 4) UUIDs in canonical form, 122 bits of entropy.
func GenerateKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return id.String(), nil
}

// ParseKey validates a presented key and returns its canonical form.
// Any UUID spelling accepted by uuid.Parse is normalized to lowercase hyphenated form.
func ParseKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKeyFormat
	}
	id, err := uuid.Parse(key)
	if err != nil {
		return "", ErrInvalidKeyFormat
	}
	return id.String(), nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	_, err := ParseKey(key)
	return err == nil
}

// QuickHash returns the first 16 bytes of the SHA-256 of input as 32 hex chars.
// It fingerprints API keys in logs and rate-limit buckets and is never stored.
func QuickHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
