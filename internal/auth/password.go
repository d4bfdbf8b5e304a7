// Package auth provides credential hashing and API key utilities.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 8

var (
	// ErrInvalidPassword indicates the password does not satisfy the password policy.
	ErrInvalidPassword = errors.New("password does not meet security requirements")
	// ErrMalformedHash indicates a stored hash could not be decoded.
	ErrMalformedHash = errors.New("malformed password hash")
)

// argon2idParams are the cost settings recorded in every argon2id hash.
type argon2idParams struct {
	memory  uint32 // KiB
	passes  uint32
	lanes   uint8
	saltLen int
	keyLen  uint32
}

// defaultArgon2id follows the OWASP minimum for argon2id.
var defaultArgon2id = argon2idParams{memory: 64 * 1024, passes: 3, lanes: 4, saltLen: 16, keyLen: 32}

func (p argon2idParams) derive(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.passes, p.memory, p.lanes, keyLen)
}

// argon2idHash is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type argon2idHash struct {
	params argon2idParams
	salt   []byte
	key    []byte
}

const argon2idTag = "$argon2id$"

func (h argon2idHash) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idTag, argon2.Version,
		h.params.memory, h.params.passes, h.params.lanes,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

// parseArgon2id decodes a stored argon2id hash. Only the current argon2 version is accepted.
func parseArgon2id(encoded string) (argon2idHash, error) {
	var out argon2idHash

	rest, ok := strings.CutPrefix(encoded, argon2idTag)
	if !ok {
		return out, ErrMalformedHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 || fields[0] != "v="+strconv.Itoa(argon2.Version) {
		return out, ErrMalformedHash
	}

	for _, kv := range strings.Split(fields[1], ",") {
		name, raw, _ := strings.Cut(kv, "=")
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			return out, ErrMalformedHash
		}
		switch name {
		case "m":
			out.params.memory = uint32(n)
		case "t":
			out.params.passes = uint32(n)
		case "p":
			if n > 255 {
				return out, ErrMalformedHash
			}
			out.params.lanes = uint8(n)
		default:
			return out, ErrMalformedHash
		}
	}
	if out.params.memory == 0 || out.params.passes == 0 || out.params.lanes == 0 {
		return out, ErrMalformedHash
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(fields[2]); err != nil || len(out.salt) == 0 {
		return out, ErrMalformedHash
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(fields[3]); err != nil || len(out.key) == 0 {
		return out, ErrMalformedHash
	}
	return out, nil
}

// PasswordHasher hashes and verifies user passwords.
// It is stateless apart from its parameters and safe for concurrent use.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
	argon2id   argon2idParams
}

// NewPasswordHasher creates a PasswordHasher.
// Unknown algorithms fall back to bcrypt; out-of-range costs fall back to bcrypt.DefaultCost.
func NewPasswordHasher(algorithm string, bcryptCost int) *PasswordHasher {
	if algorithm != AlgorithmArgon2id {
		algorithm = AlgorithmBcrypt
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &PasswordHasher{
		algorithm:  algorithm,
		bcryptCost: bcryptCost,
		argon2id:   defaultArgon2id,
	}
}

// Algorithm returns the algorithm used for new hashes.
func (h *PasswordHasher) Algorithm() string {
	return h.algorithm
}

// Hash validates the password against the policy and returns a salted hash.
// Equal passwords produce different hashes.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if err := ValidatePasswordPolicy(password); err != nil {
		return "", err
	}

	if h.algorithm == AlgorithmArgon2id {
		return h.hashArgon2id(password)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: longer than 72 bytes", ErrInvalidPassword)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether candidate matches the plaintext that produced hash.
// Hashes of either supported algorithm are accepted regardless of the configured one,
// so switching algorithms does not lock out existing users. Malformed hashes never match.
func (h *PasswordHasher) Verify(hash, candidate string) bool {
	if strings.HasPrefix(hash, argon2idTag) {
		stored, err := parseArgon2id(hash)
		if err != nil {
			return false
		}
		derived := stored.params.derive(candidate, stored.salt, uint32(len(stored.key)))
		return subtle.ConstantTimeCompare(derived, stored.key) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

func (h *PasswordHasher) hashArgon2id(password string) (string, error) {
	salt := make([]byte, h.argon2id.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return argon2idHash{
		params: h.argon2id,
		salt:   salt,
		key:    h.argon2id.derive(password, salt, h.argon2id.keyLen),
	}.String(), nil
}

// ValidatePasswordPolicy checks the password is at least MinPasswordLength characters
// and contains a digit, an uppercase letter and a lowercase letter.
func ValidatePasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidPassword, MinPasswordLength)
	}

	var hasDigit, hasUpper, hasLower bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}

	if !hasDigit || !hasUpper || !hasLower {
		return fmt.Errorf("%w: must contain a digit, an uppercase and a lowercase letter", ErrInvalidPassword)
	}
	return nil
}
