// Package models - registry_event.go defines the registry-side event
// membership. Its status is tracked separately from Event.State; the two move
// together only inside the jointly-atomic register and close operations.
package models

import "time"

// Registry membership statuses.
const (
	RegistryStatusActive = "active"
	RegistryStatusPast   = "past"
)

// RegistryEvent is the registry's record of an event belonging to an
// organization.
type RegistryEvent struct {
	EventAddress        string
	OrganizationAddress string
	Status              string
	RegisteredAt        time.Time
	ClosedAt            *time.Time
}
