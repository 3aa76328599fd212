// Package models - platform.go defines the singleton platform configuration
// row and the organizer allowlist entries.
package models

import "time"

// PlatformConfig is the singleton platform state (row id = 1). Fee is in
// basis points: 10000 bps = 100%.
type PlatformConfig struct {
	OwnerAddress        string
	FeeBps              int
	PaymentTokenAddress string
	Paused              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MaxFeeBps is the upper bound for the platform fee (100%).
const MaxFeeBps = 10000

// Organizer is an allowlist entry. Rows are upserted; a revoked organizer
// keeps its row with allowed=false.
type Organizer struct {
	Address   string
	Allowed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
