// event_repository.go implements EventRepository, providing database queries
// for ticket series rows: identity creation, the one-shot initialize flip,
// locked reads for mint/resale, and parameter updates.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// EventRepository handles database operations for ticket series
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(database *sql.DB) *EventRepository {
	return &EventRepository{db: database}
}

const eventColumns = `id, address, organization_address, platform_address, base_uri, ticket_price, deadline, max_supply, current_supply, state, created_at, updated_at`

func (r *EventRepository) scanOne(row *sql.Row) (*models.Event, error) {
	e := &models.Event{}
	err := row.Scan(
		&e.ID,
		&e.Address,
		&e.OrganizationAddress,
		&e.PlatformAddress,
		&e.BaseURI,
		&e.TicketPrice,
		&e.Deadline,
		&e.MaxSupply,
		&e.CurrentSupply,
		&e.State,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// CreateUninitialized inserts a bare series row in state uninitialized. Only
// the address identity exists at this point; parameters arrive with Initialize.
func (r *EventRepository) CreateUninitialized(ctx context.Context, address string) (*models.Event, error) {
	query := `
		INSERT INTO events (address)
		VALUES ($1)
		RETURNING ` + eventColumns + `
	`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, address))
}

// Initialize performs the one-shot parameter fill: uninitialized -> open.
// Returns false when the series was already initialized (zero rows matched
// the state guard), which is how a second invocation is detected.
func (r *EventRepository) Initialize(ctx context.Context, address, orgAddress, platformAddress, baseURI string, price int64, deadline time.Time, maxSupply int64) (bool, error) {
	query := `
		UPDATE events
		SET organization_address = $2,
		    platform_address = $3,
		    base_uri = $4,
		    ticket_price = $5,
		    deadline = $6,
		    max_supply = $7,
		    state = $8,
		    updated_at = NOW()
		WHERE address = $1 AND state = $9
	`

	res, err := db.Ext(ctx, r.db).ExecContext(ctx, query,
		address, orgAddress, platformAddress, baseURI, price, deadline, maxSupply,
		models.EventStateOpen, models.EventStateUninitialized,
	)
	if err != nil {
		return false, fmt.Errorf("failed to initialize event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read initialize result: %w", err)
	}

	return affected == 1, nil
}

// GetByAddress retrieves a series by its address
func (r *EventRepository) GetByAddress(ctx context.Context, address string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE address = $1`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, address))
}

// GetByAddressForUpdate retrieves a series with a row lock. Mint and resale
// hold this lock for the whole operation so supply accounting is serialized.
func (r *EventRepository) GetByAddressForUpdate(ctx context.Context, address string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE address = $1 FOR UPDATE`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, address))
}

// UpdateSupply sets current_supply. Callers hold the row lock and computed
// the new value from the locked read, so a plain set is race-free.
func (r *EventRepository) UpdateSupply(ctx context.Context, address string, supply int64) error {
	query := `UPDATE events SET current_supply = $2, updated_at = NOW() WHERE address = $1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, supply)
	if err != nil {
		return fmt.Errorf("failed to update event supply: %w", err)
	}
	return nil
}

// SetPrice updates the ticket price
func (r *EventRepository) SetPrice(ctx context.Context, address string, price int64) error {
	query := `UPDATE events SET ticket_price = $2, updated_at = NOW() WHERE address = $1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, price)
	if err != nil {
		return fmt.Errorf("failed to set event price: %w", err)
	}
	return nil
}

// SetDeadline updates the sales deadline
func (r *EventRepository) SetDeadline(ctx context.Context, address string, deadline time.Time) error {
	query := `UPDATE events SET deadline = $2, updated_at = NOW() WHERE address = $1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, deadline)
	if err != nil {
		return fmt.Errorf("failed to set event deadline: %w", err)
	}
	return nil
}

// Close moves the series to its terminal state
func (r *EventRepository) Close(ctx context.Context, address string) error {
	query := `UPDATE events SET state = $2, updated_at = NOW() WHERE address = $1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, models.EventStateClosed)
	if err != nil {
		return fmt.Errorf("failed to close event: %w", err)
	}
	return nil
}

// List retrieves a paginated list of series
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.queryMany(ctx, query, limit, offset)
}

// ListByOrganization retrieves all series belonging to an organization
func (r *EventRepository) ListByOrganization(ctx context.Context, orgAddress string) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE organization_address = $1
		ORDER BY created_at DESC
	`
	return r.queryMany(ctx, query, orgAddress)
}

func (r *EventRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.Event, error) {
	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		e := &models.Event{}
		err := rows.Scan(
			&e.ID,
			&e.Address,
			&e.OrganizationAddress,
			&e.PlatformAddress,
			&e.BaseURI,
			&e.TicketPrice,
			&e.Deadline,
			&e.MaxSupply,
			&e.CurrentSupply,
			&e.State,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Count returns the total number of series
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountByState returns the number of series in the given lifecycle state
func (r *EventRepository) CountByState(ctx context.Context, state string) (int, error) {
	var count int
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE state = $1`, state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events by state: %w", err)
	}
	return count, nil
}
