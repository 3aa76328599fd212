// Package auth provides the authentication primitives shared by the request
// middleware and the account handlers: API key generation and checking, JWT
// mint/verify, and the scope vocabulary. The request-time wiring lives in
// internal/middleware/auth.go.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the number of random bytes behind each key.
	APIKeyLength = 32

	// DisplayPrefixLength caps the stored display prefix. The prefix is the
	// only part of a key ever shown again after creation.
	DisplayPrefixLength = 10

	// BcryptCost is shared by API key and account password hashing.
	BcryptCost = 12
)

// GenerateAPIKey mints a key of the form "<prefix>_<random>". It returns the
// full key (shown to the caller exactly once), the bcrypt hash to store, and
// the truncated display prefix used to identify the key in listings.
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(randomBytes))

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	displayPrefix = fullKey
	if len(displayPrefix) > DisplayPrefixLength {
		displayPrefix = displayPrefix[:DisplayPrefixLength]
	}

	return fullKey, string(hashBytes), displayPrefix, nil
}

// ValidateAPIKey reports whether providedKey matches the stored bcrypt hash.
func ValidateAPIKey(providedKey, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractAPIKeyFromHeader pulls the key out of an Authorization header of the
// form "Bearer tkr_...". JWTs arrive through the same header; the middleware
// decides which interpretation applies.
func ExtractAPIKeyFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if key == "" {
		return "", errors.New("API key is empty after Bearer prefix")
	}
	return key, nil
}
