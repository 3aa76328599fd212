// Package models - sso_config.go defines the SSOConfig model for OIDC
// provider configuration stored in the database. The client secret is never
// exposed through JSON.
package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SystemSettings is the singleton row tracking first-run setup state
type SystemSettings struct {
	ID             int            `db:"id"`
	SetupCompleted bool           `db:"setup_completed"`
	SetupTokenHash sql.NullString `db:"setup_token_hash"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// SetupStatus is the public setup status response
type SetupStatus struct {
	SetupCompleted bool `json:"setup_completed"`
	SetupRequired  bool `json:"setup_required"`
	SSOEnabled     bool `json:"sso_enabled"`
}

// SSOConfig holds OIDC provider configuration stored in the database
type SSOConfig struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	IssuerURL    string          `db:"issuer_url" json:"issuer_url"`
	ClientID     string          `db:"client_id" json:"client_id"`
	ClientSecret string          `db:"client_secret" json:"-"` // Never expose
	RedirectURL  string          `db:"redirect_url" json:"redirect_url"`
	Scopes       json.RawMessage `db:"scopes" json:"scopes"`
	Enabled      bool            `db:"enabled" json:"enabled"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// SSOConfigInput is used for creating/updating SSO configuration via the API
type SSOConfigInput struct {
	Name         string   `json:"name,omitempty"`
	IssuerURL    string   `json:"issuer_url" binding:"required"`
	ClientID     string   `json:"client_id" binding:"required"`
	ClientSecret string   `json:"client_secret" binding:"required"`
	RedirectURL  string   `json:"redirect_url" binding:"required"`
	Scopes       []string `json:"scopes,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// SSOConfigResponse is the API response for SSO configuration (no secrets)
type SSOConfigResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	IssuerURL       string    `json:"issuer_url"`
	ClientID        string    `json:"client_id"`
	ClientSecretSet bool      `json:"client_secret_set"`
	RedirectURL     string    `json:"redirect_url"`
	Scopes          []string  `json:"scopes"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToResponse converts an SSOConfig to a safe API response (no secrets)
func (c *SSOConfig) ToResponse() *SSOConfigResponse {
	return &SSOConfigResponse{
		ID:              c.ID,
		Name:            c.Name,
		IssuerURL:       c.IssuerURL,
		ClientID:        c.ClientID,
		ClientSecretSet: c.ClientSecret != "",
		RedirectURL:     c.RedirectURL,
		Scopes:          c.GetScopes(),
		Enabled:         c.Enabled,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// GetScopes parses and returns the scopes as a string slice
func (c *SSOConfig) GetScopes() []string {
	var scopes []string
	if len(c.Scopes) > 0 {
		_ = json.Unmarshal(c.Scopes, &scopes) // nolint:errcheck
	}
	if len(scopes) == 0 {
		return []string{"openid", "email", "profile"}
	}
	return scopes
}

// MarshalScopes encodes a scope list for the JSONB column. A nil slice is
// stored as an empty array so GetScopes falls back to the defaults.
func MarshalScopes(scopes []string) (json.RawMessage, error) {
	if scopes == nil {
		scopes = []string{}
	}
	return json.Marshal(scopes)
}
