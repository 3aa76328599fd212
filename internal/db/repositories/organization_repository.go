// organization_repository.go implements OrganizationRepository, providing
// database queries for organization rows. The owner<->organization mapping
// lives entirely in this table; remapping an owner is a single-row UPDATE so
// both directions can never diverge.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(database *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: database}
}

const organizationColumns = `id, address, owner_address, platform_address, banner_uri, paused, created_at, updated_at`

func (r *OrganizationRepository) scanOne(row *sql.Row) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.Address,
		&org.OwnerAddress,
		&org.PlatformAddress,
		&org.BannerURI,
		&org.Paused,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// Create inserts a new organization row. Both unique indexes (address,
// owner_address) are checked by the database; a violation surfaces as an
// error rather than a silent overwrite.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (address, owner_address, platform_address, banner_uri, paused)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := db.Ext(ctx, r.db).QueryRowContext(ctx, query,
		org.Address,
		org.OwnerAddress,
		org.PlatformAddress,
		org.BannerURI,
		org.Paused,
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetByAddress retrieves an organization by its address
func (r *OrganizationRepository) GetByAddress(ctx context.Context, address string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE address = $1`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, address))
}

// GetByOwner retrieves the organization owned by the given address
func (r *OrganizationRepository) GetByOwner(ctx context.Context, ownerAddress string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE owner_address = $1`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, ownerAddress))
}

// GetByAddressForUpdate retrieves an organization by address with a row lock
func (r *OrganizationRepository) GetByAddressForUpdate(ctx context.Context, address string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE address = $1 FOR UPDATE`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, address))
}

// GetByOwnerForUpdate retrieves the organization owned by an address with a row lock
func (r *OrganizationRepository) GetByOwnerForUpdate(ctx context.Context, ownerAddress string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE owner_address = $1 FOR UPDATE`
	return r.scanOne(db.Ext(ctx, r.db).QueryRowContext(ctx, query, ownerAddress))
}

// UpdateOwner remaps the organization to a new owner. One UPDATE moves both
// mapping directions because they are the same row.
func (r *OrganizationRepository) UpdateOwner(ctx context.Context, address, newOwner string) error {
	query := `
		UPDATE organizations
		SET owner_address = $2, updated_at = NOW()
		WHERE address = $1
	`

	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, newOwner)
	if err != nil {
		return fmt.Errorf("failed to update organization owner: %w", err)
	}

	return nil
}

// UpdateBanner sets the organization banner URI
func (r *OrganizationRepository) UpdateBanner(ctx context.Context, address, bannerURI string) error {
	query := `
		UPDATE organizations
		SET banner_uri = $2, updated_at = NOW()
		WHERE address = $1
	`

	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, bannerURI)
	if err != nil {
		return fmt.Errorf("failed to update organization banner: %w", err)
	}

	return nil
}

// SetPaused flips the platform-controlled pause flag on an organization
func (r *OrganizationRepository) SetPaused(ctx context.Context, address string, paused bool) error {
	query := `
		UPDATE organizations
		SET paused = $2, updated_at = NOW()
		WHERE address = $1
	`

	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, address, paused)
	if err != nil {
		return fmt.Errorf("failed to set organization paused: %w", err)
	}

	return nil
}

// List retrieves a paginated list of organizations
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*models.Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM organizations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org := &models.Organization{}
		err := rows.Scan(
			&org.ID,
			&org.Address,
			&org.OwnerAddress,
			&org.PlatformAddress,
			&org.BannerURI,
			&org.Paused,
			&org.CreatedAt,
			&org.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// Count returns the total number of organizations
func (r *OrganizationRepository) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM organizations`
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	return count, nil
}
