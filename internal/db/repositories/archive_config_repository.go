// archive_config_repository.go implements ArchiveConfigRepository, providing
// database queries for reading and updating the transition-archive backend
// configuration.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// ArchiveConfigRepository handles database operations for archive configuration
type ArchiveConfigRepository struct {
	db *sqlx.DB
}

// NewArchiveConfigRepository creates a new archive configuration repository
func NewArchiveConfigRepository(db *sqlx.DB) *ArchiveConfigRepository {
	return &ArchiveConfigRepository{db: db}
}

// GetArchiveConfig retrieves the singleton archive configuration record
func (r *ArchiveConfigRepository) GetArchiveConfig(ctx context.Context) (*models.ArchiveConfig, error) {
	var config models.ArchiveConfig
	query := `SELECT * FROM archive_config WHERE id = 1`
	err := r.db.GetContext(ctx, &config, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &config, err
}

// UpdateArchiveConfig replaces the archive backend configuration
func (r *ArchiveConfigRepository) UpdateArchiveConfig(ctx context.Context, config *models.ArchiveConfig) error {
	query := `
		UPDATE archive_config SET
			backend = $1,
			settings = $2,
			configured_by = $3,
			configured_at = $4,
			updated_at = $4
		WHERE id = 1`

	_, err := r.db.ExecContext(ctx, query,
		config.Backend, config.Settings, config.ConfiguredBy, time.Now(),
	)
	return err
}
