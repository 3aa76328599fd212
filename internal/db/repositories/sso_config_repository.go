// sso_config_repository.go implements SSOConfigRepository, providing database
// queries for SSO provider configuration and the first-run setup state held in
// system_settings.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// SSOConfigRepository handles database operations for SSO configuration
type SSOConfigRepository struct {
	db *sqlx.DB
}

// NewSSOConfigRepository creates a new SSO configuration repository
func NewSSOConfigRepository(db *sqlx.DB) *SSOConfigRepository {
	return &SSOConfigRepository{db: db}
}

// === System settings / first-run setup ===

// IsSetupCompleted checks if the initial setup has been completed
func (r *SSOConfigRepository) IsSetupCompleted(ctx context.Context) (bool, error) {
	var completed bool
	query := `SELECT setup_completed FROM system_settings WHERE id = 1`
	err := r.db.GetContext(ctx, &completed, query)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return completed, err
}

// SetSetupCompleted marks initial setup as completed and clears the setup token
func (r *SSOConfigRepository) SetSetupCompleted(ctx context.Context) error {
	query := `
		UPDATE system_settings SET
			setup_completed = true,
			setup_token_hash = NULL,
			updated_at = $1
		WHERE id = 1`
	_, err := r.db.ExecContext(ctx, query, time.Now())
	return err
}

// GetSetupTokenHash retrieves the bcrypt hash of the setup token
func (r *SSOConfigRepository) GetSetupTokenHash(ctx context.Context) (string, error) {
	var hash sql.NullString
	query := `SELECT setup_token_hash FROM system_settings WHERE id = 1`
	err := r.db.GetContext(ctx, &hash, query)
	if err != nil {
		return "", err
	}
	if !hash.Valid {
		return "", nil
	}
	return hash.String, nil
}

// SetSetupTokenHash stores the bcrypt hash of the setup token
func (r *SSOConfigRepository) SetSetupTokenHash(ctx context.Context, hash string) error {
	query := `
		UPDATE system_settings SET
			setup_token_hash = $1,
			updated_at = $2
		WHERE id = 1`
	_, err := r.db.ExecContext(ctx, query, hash, time.Now())
	return err
}

// GetSetupStatus returns the setup status for the bootstrap flow
func (r *SSOConfigRepository) GetSetupStatus(ctx context.Context) (*models.SetupStatus, error) {
	var settings models.SystemSettings
	query := `SELECT * FROM system_settings WHERE id = 1`
	err := r.db.GetContext(ctx, &settings, query)
	if err == sql.ErrNoRows {
		// Fresh database with no settings row yet
		return &models.SetupStatus{SetupRequired: true}, nil
	}
	if err != nil {
		return nil, err
	}

	status := &models.SetupStatus{
		SetupCompleted: settings.SetupCompleted,
		SetupRequired:  !settings.SetupCompleted,
	}

	ssoCfg, err := r.GetEnabledSSOConfig(ctx)
	if err != nil {
		return nil, err
	}
	status.SSOEnabled = ssoCfg != nil

	return status, nil
}

// === SSO configuration CRUD ===

// CreateSSOConfig creates a new SSO configuration
func (r *SSOConfigRepository) CreateSSOConfig(ctx context.Context, config *models.SSOConfig) error {
	query := `
		INSERT INTO sso_config (
			id, name, issuer_url, client_id, client_secret,
			redirect_url, scopes, enabled, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)`

	_, err := r.db.ExecContext(ctx, query,
		config.ID, config.Name, config.IssuerURL, config.ClientID, config.ClientSecret,
		config.RedirectURL, config.Scopes, config.Enabled, config.CreatedAt, config.UpdatedAt,
	)
	return err
}

// GetEnabledSSOConfig retrieves the currently enabled SSO configuration
func (r *SSOConfigRepository) GetEnabledSSOConfig(ctx context.Context) (*models.SSOConfig, error) {
	var config models.SSOConfig
	query := `SELECT * FROM sso_config WHERE enabled = true LIMIT 1`
	err := r.db.GetContext(ctx, &config, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &config, err
}

// GetSSOConfig retrieves an SSO configuration by ID
func (r *SSOConfigRepository) GetSSOConfig(ctx context.Context, id uuid.UUID) (*models.SSOConfig, error) {
	var config models.SSOConfig
	query := `SELECT * FROM sso_config WHERE id = $1`
	err := r.db.GetContext(ctx, &config, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &config, err
}

// ListSSOConfigs lists all SSO configurations
func (r *SSOConfigRepository) ListSSOConfigs(ctx context.Context) ([]*models.SSOConfig, error) {
	var configs []*models.SSOConfig
	query := `SELECT * FROM sso_config ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &configs, query)
	return configs, err
}

// UpdateSSOConfig updates an existing SSO configuration
func (r *SSOConfigRepository) UpdateSSOConfig(ctx context.Context, config *models.SSOConfig) error {
	query := `
		UPDATE sso_config SET
			name = $2,
			issuer_url = $3,
			client_id = $4,
			client_secret = $5,
			redirect_url = $6,
			scopes = $7,
			enabled = $8,
			updated_at = $9
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		config.ID, config.Name, config.IssuerURL, config.ClientID, config.ClientSecret,
		config.RedirectURL, config.Scopes, config.Enabled, time.Now(),
	)
	return err
}

// DeleteSSOConfig deletes an SSO configuration
func (r *SSOConfigRepository) DeleteSSOConfig(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sso_config WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DisableAllSSOConfigs sets enabled=false for all configurations
func (r *SSOConfigRepository) DisableAllSSOConfigs(ctx context.Context) error {
	query := `UPDATE sso_config SET enabled = false, updated_at = $1`
	_, err := r.db.ExecContext(ctx, query, time.Now())
	return err
}

// EnableSSOConfig enables a specific configuration (disables others first)
func (r *SSOConfigRepository) EnableSSOConfig(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	_, err = tx.ExecContext(ctx, `UPDATE sso_config SET enabled = false, updated_at = $1`, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sso_config SET enabled = true, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}
