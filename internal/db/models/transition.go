// Package models - transition.go defines the Transition model: one record per
// successful state transition, written atomically with the transition itself.
// ShippedAt and ArchivedAt are outbox markers owned by the relay job.
package models

import "time"

// Transition record types. Every successful domain operation emits exactly
// one record with one of these types.
const (
	RecordOrganizationCreated              = "organization.created"
	RecordOrganizationOwnershipTransferred = "organization.ownership_transferred"
	RecordOrganizationBannerUpdated        = "organization.banner_updated"
	RecordOrganizationPaused               = "organization.paused"
	RecordOrganizationUnpaused             = "organization.unpaused"
	RecordOrganizationWithdrawal           = "organization.withdrawal"
	RecordOrganizerStatusChanged           = "organizer.status_changed"
	RecordPlatformFeeUpdated               = "platform.fee_updated"
	RecordPlatformPaymentTokenUpdated      = "platform.payment_token_updated"
	RecordPlatformPaused                   = "platform.paused"
	RecordPlatformUnpaused                 = "platform.unpaused"
	RecordEventCreated                     = "event.created"
	RecordEventClosed                      = "event.closed"
	RecordEventPriceUpdated                = "event.price_updated"
	RecordEventDeadlineUpdated             = "event.deadline_updated"
	RecordTicketMinted                     = "ticket.minted"
	RecordTicketResold                     = "ticket.resold"
)

// Transition represents a recorded state transition
type Transition struct {
	ID                  string
	RecordType          string
	EntityAddress       string  // The entity that changed (platform, organization or event address)
	ActorAddress        string  // Authenticated caller that drove the transition
	OrganizationAddress *string
	EventAddress        *string
	TicketID            *int64
	Amount              *int64                 // Token units moved, when the transition involved payment
	FeeAmount           *int64                 // Platform fee portion of Amount
	CounterpartyAddress *string                // Buyer, new owner, recipient
	Metadata            map[string]interface{} // JSONB: additional context
	CreatedAt           time.Time
	ShippedAt           *time.Time
	ArchivedAt          *time.Time
}
