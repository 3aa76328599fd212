// Package models - organization.go defines the Organization model. The row
// carries both directions of the owner<->organization mapping; the UNIQUE
// indexes on address and owner_address keep the mapping injective.
package models

import "time"

// Organization represents an organizer-owned organization on the platform
type Organization struct {
	ID              string
	Address         string
	OwnerAddress    string
	PlatformAddress string // Immutable after creation
	BannerURI       string
	Paused          bool // Platform-controlled; the owner cannot flip this
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
