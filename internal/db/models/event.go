// Package models - event.go defines the Event (ticket series) and Ticket
// models plus the series lifecycle states.
package models

import "time"

// Event lifecycle states. The progression is one-way:
// uninitialized -> open -> closed.
const (
	EventStateUninitialized = "uninitialized"
	EventStateOpen          = "open"
	EventStateClosed        = "closed"
)

// Event represents a ticket series. A row is created in state uninitialized
// with zeroed parameters; the one-shot initialize fills the parameters and
// moves it to open.
type Event struct {
	ID                  string
	Address             string
	OrganizationAddress string // Immutable once initialized
	PlatformAddress     string // Immutable once initialized
	BaseURI             string
	TicketPrice         int64
	Deadline            *time.Time // Nil until initialized
	MaxSupply           int64
	CurrentSupply       int64
	State               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsOpen reports whether the series accepts mints and resales.
func (e *Event) IsOpen() bool {
	return e.State == EventStateOpen
}

// IsClosed reports whether the series is terminally closed.
func (e *Event) IsClosed() bool {
	return e.State == EventStateClosed
}

// DeadlinePassed reports whether the sales deadline is at or before now.
// An event with no deadline set (uninitialized) counts as passed.
func (e *Event) DeadlinePassed(now time.Time) bool {
	if e.Deadline == nil {
		return true
	}
	return !now.Before(*e.Deadline)
}

// SoldOut reports whether every ticket has been minted.
func (e *Event) SoldOut() bool {
	return e.CurrentSupply >= e.MaxSupply
}

// Ticket represents a single minted ticket. Ids are dense per series:
// 0..CurrentSupply-1.
type Ticket struct {
	EventAddress  string
	TicketID      int64
	HolderAddress string
	MintedAt      time.Time
	UpdatedAt     time.Time
}
