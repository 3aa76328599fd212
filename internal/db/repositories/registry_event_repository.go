// registry_event_repository.go implements RegistryEventRepository, the
// registry-side view of event membership (active vs past). Its status moves
// only inside the same transaction as the series state it mirrors.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// RegistryEventRepository handles database operations for registry event membership
type RegistryEventRepository struct {
	db *sql.DB
}

// NewRegistryEventRepository creates a new registry event repository
func NewRegistryEventRepository(database *sql.DB) *RegistryEventRepository {
	return &RegistryEventRepository{db: database}
}

const registryEventColumns = `event_address, organization_address, status, registered_at, closed_at`

func (r *RegistryEventRepository) scanOne(row *sql.Row) (*models.RegistryEvent, error) {
	re := &models.RegistryEvent{}
	err := row.Scan(
		&re.EventAddress,
		&re.OrganizationAddress,
		&re.Status,
		&re.RegisteredAt,
		&re.ClosedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get registry event: %w", err)
	}
	return re, nil
}

// Register inserts an active membership row. The primary key rejects
// registering the same event twice.
func (r *RegistryEventRepository) Register(ctx context.Context, eventAddress, orgAddress string) error {
	query := `
		INSERT INTO registry_events (event_address, organization_address, status)
		VALUES ($1, $2, $3)
	`

	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, eventAddress, orgAddress, models.RegistryStatusActive)
	if err != nil {
		return fmt.Errorf("failed to register event: %w", err)
	}

	return nil
}

// Get retrieves the membership row for an event
func (r *RegistryEventRepository) Get(ctx context.Context, eventAddress string) (*models.RegistryEvent, error) {
	query := `SELECT ` + registryEventColumns + ` FROM registry_events WHERE event_address = $1`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, eventAddress))
}

// GetForUpdate retrieves the membership row with a row lock
func (r *RegistryEventRepository) GetForUpdate(ctx context.Context, eventAddress string) (*models.RegistryEvent, error) {
	query := `SELECT ` + registryEventColumns + ` FROM registry_events WHERE event_address = $1 FOR UPDATE`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, eventAddress))
}

// MarkPast moves an active membership to past. Returns false when the row was
// not currently active, so the caller can reject closing a non-active event.
func (r *RegistryEventRepository) MarkPast(ctx context.Context, eventAddress string) (bool, error) {
	query := `
		UPDATE registry_events
		SET status = $2, closed_at = NOW()
		WHERE event_address = $1 AND status = $3
	`

	res, err := db.Ext(ctx, r.db).ExecContext(ctx, query, eventAddress, models.RegistryStatusPast, models.RegistryStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to mark event past: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read mark past result: %w", err)
	}

	return affected == 1, nil
}

// List retrieves membership rows, optionally filtered by status
func (r *RegistryEventRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.RegistryEvent, error) {
	query := `SELECT ` + registryEventColumns + ` FROM registry_events`
	args := make([]interface{}, 0, 3)

	if status != "" {
		query += ` WHERE status = $1 ORDER BY registered_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY registered_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry events: %w", err)
	}
	defer rows.Close()

	memberships := make([]*models.RegistryEvent, 0)
	for rows.Next() {
		re := &models.RegistryEvent{}
		err := rows.Scan(
			&re.EventAddress,
			&re.OrganizationAddress,
			&re.Status,
			&re.RegisteredAt,
			&re.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registry event: %w", err)
		}
		memberships = append(memberships, re)
	}

	return memberships, rows.Err()
}

// CountByStatus returns the number of membership rows with the given status
func (r *RegistryEventRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_events WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registry events: %w", err)
	}
	return count, nil
}
