// record.go defines the wire form of a transition record as delivered to
// external consumers.
package audit

import (
	"time"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// Record is a transition log entry in its export shape. Field names are part
// of the consumer contract and stay stable across schema changes.
type Record struct {
	ID                  string                 `json:"id"`
	Type                string                 `json:"type"`
	EntityAddress       string                 `json:"entity_address"`
	ActorAddress        string                 `json:"actor_address"`
	OrganizationAddress string                 `json:"organization_address,omitempty"`
	EventAddress        string                 `json:"event_address,omitempty"`
	TicketID            *int64                 `json:"ticket_id,omitempty"`
	Amount              *int64                 `json:"amount,omitempty"`
	Fee                 *int64                 `json:"fee,omitempty"`
	CounterpartyAddress string                 `json:"counterparty_address,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt          time.Time              `json:"occurred_at"`
}

// RecordFromTransition converts a stored transition row into its wire form
func RecordFromTransition(t *models.Transition) *Record {
	rec := &Record{
		ID:            t.ID,
		Type:          t.RecordType,
		EntityAddress: t.EntityAddress,
		ActorAddress:  t.ActorAddress,
		TicketID:      t.TicketID,
		Amount:        t.Amount,
		Fee:           t.FeeAmount,
		Metadata:      t.Metadata,
		OccurredAt:    t.CreatedAt,
	}
	if t.OrganizationAddress != nil {
		rec.OrganizationAddress = *t.OrganizationAddress
	}
	if t.EventAddress != nil {
		rec.EventAddress = *t.EventAddress
	}
	if t.CounterpartyAddress != nil {
		rec.CounterpartyAddress = *t.CounterpartyAddress
	}
	return rec
}
