// ticket_repository.go implements TicketRepository, providing database
// queries for individual tickets keyed by (event address, ticket id).
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// TicketRepository handles database operations for tickets
type TicketRepository struct {
	db *sql.DB
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(database *sql.DB) *TicketRepository {
	return &TicketRepository{db: database}
}

const ticketColumns = `event_address, ticket_id, holder_address, minted_at, updated_at`

func (r *TicketRepository) scanOne(row *sql.Row) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := row.Scan(
		&t.EventAddress,
		&t.TicketID,
		&t.HolderAddress,
		&t.MintedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// Insert creates a ticket row. The primary key rejects a duplicate id within
// a series, which backs up the dense-id accounting done under the series lock.
func (r *TicketRepository) Insert(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO tickets (event_address, ticket_id, holder_address)
		VALUES ($1, $2, $3)
		RETURNING minted_at, updated_at
	`

	err := db.Ext(ctx, r.db).QueryRowContext(ctx, query,
		ticket.EventAddress,
		ticket.TicketID,
		ticket.HolderAddress,
	).Scan(&ticket.MintedAt, &ticket.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}

	return nil
}

// Get retrieves a ticket by series address and id
func (r *TicketRepository) Get(ctx context.Context, eventAddress string, ticketID int64) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_address = $1 AND ticket_id = $2`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, eventAddress, ticketID))
}

// GetForUpdate retrieves a ticket with a row lock (resale path)
func (r *TicketRepository) GetForUpdate(ctx context.Context, eventAddress string, ticketID int64) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_address = $1 AND ticket_id = $2 FOR UPDATE`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, eventAddress, ticketID))
}

// UpdateHolder reassigns a ticket to a new holder
func (r *TicketRepository) UpdateHolder(ctx context.Context, eventAddress string, ticketID int64, holder string) error {
	query := `
		UPDATE tickets
		SET holder_address = $3, updated_at = NOW()
		WHERE event_address = $1 AND ticket_id = $2
	`

	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, eventAddress, ticketID, holder)
	if err != nil {
		return fmt.Errorf("failed to update ticket holder: %w", err)
	}

	return nil
}

// ListByEvent retrieves tickets of a series in id order
func (r *TicketRepository) ListByEvent(ctx context.Context, eventAddress string, limit, offset int) ([]*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE event_address = $1
		ORDER BY ticket_id ASC
		LIMIT $2 OFFSET $3
	`
	return r.queryMany(ctx, query, eventAddress, limit, offset)
}

// ListByHolder retrieves all tickets held by an address
func (r *TicketRepository) ListByHolder(ctx context.Context, holder string) ([]*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE holder_address = $1
		ORDER BY minted_at DESC
	`
	return r.queryMany(ctx, query, holder)
}

func (r *TicketRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.Ticket, error) {
	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]*models.Ticket, 0)
	for rows.Next() {
		t := &models.Ticket{}
		err := rows.Scan(
			&t.EventAddress,
			&t.TicketID,
			&t.HolderAddress,
			&t.MintedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// CountByEvent returns the number of tickets minted for a series
func (r *TicketRepository) CountByEvent(ctx context.Context, eventAddress string) (int64, error) {
	var count int64
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE event_address = $1`, eventAddress).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

// Count returns the total number of tickets minted across all series
func (r *TicketRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}
