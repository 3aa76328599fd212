// platform_repository.go implements PlatformRepository, providing database
// queries for the singleton platform configuration row and the organizer
// allowlist. Methods join the ambient transaction when one is in the context.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// PlatformRepository handles database operations for platform-level state
type PlatformRepository struct {
	db *sql.DB
}

// NewPlatformRepository creates a new platform repository
func NewPlatformRepository(database *sql.DB) *PlatformRepository {
	return &PlatformRepository{db: database}
}

const platformConfigColumns = `owner_address, fee_bps, payment_token_address, paused, created_at, updated_at`

func (r *PlatformRepository) scanConfig(row *sql.Row) (*models.PlatformConfig, error) {
	cfg := &models.PlatformConfig{}
	err := row.Scan(
		&cfg.OwnerAddress,
		&cfg.FeeBps,
		&cfg.PaymentTokenAddress,
		&cfg.Paused,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not seeded
		}
		return nil, fmt.Errorf("failed to get platform config: %w", err)
	}
	return cfg, nil
}

// GetConfig retrieves the platform configuration snapshot
func (r *PlatformRepository) GetConfig(ctx context.Context) (*models.PlatformConfig, error) {
	query := `SELECT ` + platformConfigColumns + ` FROM platform_config WHERE id = 1`
	return r.scanConfig(db.Ext(ctx, r.db).QueryRowContext(ctx, query))
}

// GetConfigForUpdate retrieves the platform configuration with a row lock.
// Every mutating domain operation locks this row first, which serializes the
// whole state machine.
func (r *PlatformRepository) GetConfigForUpdate(ctx context.Context) (*models.PlatformConfig, error) {
	query := `SELECT ` + platformConfigColumns + ` FROM platform_config WHERE id = 1 FOR UPDATE`
	return r.scanConfig(db.Ext(ctx, r.db).QueryRowContext(ctx, query))
}

// SetOwner sets the platform owner address (first-run setup)
func (r *PlatformRepository) SetOwner(ctx context.Context, address string) error {
	query := `UPDATE platform_config SET owner_address = $1, updated_at = NOW() WHERE id = 1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address)
	if err != nil {
		return fmt.Errorf("failed to set platform owner: %w", err)
	}
	return nil
}

// UpdateFee updates the platform fee in basis points
func (r *PlatformRepository) UpdateFee(ctx context.Context, feeBps int) error {
	query := `UPDATE platform_config SET fee_bps = $1, updated_at = NOW() WHERE id = 1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, feeBps)
	if err != nil {
		return fmt.Errorf("failed to update platform fee: %w", err)
	}
	return nil
}

// UpdatePaymentToken updates the payment token address
func (r *PlatformRepository) UpdatePaymentToken(ctx context.Context, address string) error {
	query := `UPDATE platform_config SET payment_token_address = $1, updated_at = NOW() WHERE id = 1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address)
	if err != nil {
		return fmt.Errorf("failed to update payment token: %w", err)
	}
	return nil
}

// SetPaused flips the global pause flag
func (r *PlatformRepository) SetPaused(ctx context.Context, paused bool) error {
	query := `UPDATE platform_config SET paused = $1, updated_at = NOW() WHERE id = 1`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, paused)
	if err != nil {
		return fmt.Errorf("failed to set platform paused: %w", err)
	}
	return nil
}

// === Organizer allowlist ===

// UpsertOrganizer sets the allowlist status for an address, inserting the row
// if it does not exist yet
func (r *PlatformRepository) UpsertOrganizer(ctx context.Context, address string, allowed bool) error {
	query := `
		INSERT INTO organizers (address, allowed)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET allowed = $2, updated_at = NOW()
	`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, allowed)
	if err != nil {
		return fmt.Errorf("failed to upsert organizer: %w", err)
	}
	return nil
}

// GetOrganizer retrieves an organizer allowlist entry
func (r *PlatformRepository) GetOrganizer(ctx context.Context, address string) (*models.Organizer, error) {
	query := `
		SELECT address, allowed, created_at, updated_at
		FROM organizers
		WHERE address = $1
	`

	org := &models.Organizer{}
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, query, address).Scan(
		&org.Address,
		&org.Allowed,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organizer: %w", err)
	}

	return org, nil
}

// IsAllowedOrganizer reports whether the address is currently allowlisted
func (r *PlatformRepository) IsAllowedOrganizer(ctx context.Context, address string) (bool, error) {
	org, err := r.GetOrganizer(ctx, address)
	if err != nil {
		return false, err
	}
	return org != nil && org.Allowed, nil
}

// ListOrganizers retrieves all organizer allowlist entries
func (r *PlatformRepository) ListOrganizers(ctx context.Context) ([]*models.Organizer, error) {
	query := `
		SELECT address, allowed, created_at, updated_at
		FROM organizers
		ORDER BY created_at DESC
	`

	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizers: %w", err)
	}
	defer rows.Close()

	organizers := make([]*models.Organizer, 0)
	for rows.Next() {
		org := &models.Organizer{}
		err := rows.Scan(
			&org.Address,
			&org.Allowed,
			&org.CreatedAt,
			&org.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organizer: %w", err)
		}
		organizers = append(organizers, org)
	}

	return organizers, rows.Err()
}
