// Package models defines the database model types for the ticket registry.
// Each type corresponds to a database table. Models are pure data types:
// business logic belongs in the service layer, query logic in the
// repositories layer.
package models

import "time"

// Account represents an authentication identity. The address doubles as the
// actor identity for every domain operation the account performs.
type Account struct {
	ID           string
	Address      string
	Email        string
	PasswordHash string   // Bcrypt hash, never serialized
	DisplayName  string
	Scopes       []string // JSONB array: ["events:read", "events:write", "platform:admin"]
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountResponse is the API-safe view of an account (no password hash).
type AccountResponse struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Scopes      []string  `json:"scopes"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToResponse converts an Account to its API representation.
func (a *Account) ToResponse() *AccountResponse {
	scopes := a.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return &AccountResponse{
		ID:          a.ID,
		Address:     a.Address,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Scopes:      scopes,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
	}
}
