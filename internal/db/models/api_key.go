// Package models - api_key.go defines the APIKey model for programmatic
// authentication. Only the bcrypt hash of a key is stored; the prefix is kept
// for display and lookup.
package models

import "time"

// APIKey represents an API key for authentication
type APIKey struct {
	ID               string
	AccountID        string
	Name             string     // Friendly name (e.g., "CI Pipeline Key")
	Prefix           string     // First chars for display and lookup (e.g., "tkr_abc123")
	KeyHash          string     // Bcrypt hash of the full key
	Scopes           []string   // JSONB array: ["events:read", "events:write", "platform:admin"]
	ExpiresAt        *time.Time // Optional expiration
	LastUsedAt       *time.Time
	ExpiryNotifiedAt *time.Time // Set when the expiry warning email was sent
	CreatedAt        time.Time
	// Joined fields (not stored in api_keys table)
	AccountEmail *string
}

// IsExpired reports whether the key has an expiry in the past.
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now())
}
