// Package auth - scopes.go defines permission scope constants and provides
// HasScope, HasAnyScope, and HasAllScopes helper functions for scope checking.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Event scopes cover the organizer surface: organizations, events, tickets
	ScopeEventsRead  Scope = "events:read"
	ScopeEventsWrite Scope = "events:write"

	// Platform admin scope (wildcard - all permissions, including the /admin surface)
	ScopePlatformAdmin Scope = "platform:admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeEventsRead,
		ScopeEventsWrite,
		ScopePlatformAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if an account has a required scope.
// platform:admin is a wildcard, and events:write implies events:read.
func HasScope(accountScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range accountScopes {
		// Check for exact match
		if scope == requiredStr {
			return true
		}

		// Check for admin wildcard
		if scope == string(ScopePlatformAdmin) {
			return true
		}

		// Write permission implies read permission
		if required == ScopeEventsRead && scope == string(ScopeEventsWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if an account has at least one of the required scopes
func HasAnyScope(accountScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(accountScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if an account has all of the required scopes
func HasAllScopes(accountScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(accountScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns default scopes for a new API key
func GetDefaultScopes() []string {
	return []string{
		string(ScopeEventsRead),
	}
}

// GetAdminScopes returns all scopes including admin
func GetAdminScopes() []string {
	scopes := make([]string, 0)
	for _, scope := range AllScopes() {
		scopes = append(scopes, string(scope))
	}
	return scopes
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
