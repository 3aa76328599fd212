// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by prefix, creation, expiry management, and last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, account_id, name, prefix, key_hash, scopes, expires_at, last_used_at, expiry_notified_at, created_at`

// CreateAPIKey creates a new API key
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	scopesJSON, err := json.Marshal(apiKey.Scopes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, account_id, name, prefix, key_hash, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.AccountID,
		apiKey.Name,
		apiKey.Prefix,
		apiKey.KeyHash,
		scopesJSON,
		apiKey.ExpiresAt,
		apiKey.CreatedAt,
	)

	return err
}

func (r *APIKeyRepository) scanOne(row *sql.Row) (*models.APIKey, error) {
	apiKey := &models.APIKey{}
	var scopesJSON []byte

	err := row.Scan(
		&apiKey.ID,
		&apiKey.AccountID,
		&apiKey.Name,
		&apiKey.Prefix,
		&apiKey.KeyHash,
		&scopesJSON,
		&apiKey.ExpiresAt,
		&apiKey.LastUsedAt,
		&apiKey.ExpiryNotifiedAt,
		&apiKey.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scopesJSON, &apiKey.Scopes); err != nil {
		return nil, err
	}

	return apiKey, nil
}

// GetAPIKeyByPrefix retrieves an API key by its unique prefix (for authentication)
func (r *APIKeyRepository) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE prefix = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, prefix))
}

// GetAPIKeyByID retrieves an API key by ID
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, keyID))
}

// ListAPIKeysByAccount retrieves all API keys of an account
func (r *APIKeyRepository) ListAPIKeysByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE account_id = $1
		ORDER BY created_at DESC
	`
	return r.queryMany(ctx, query, accountID)
}

// ListAll retrieves all API keys with the owning account email (for admin use)
func (r *APIKeyRepository) ListAll(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT ak.id, ak.account_id, ak.name, ak.prefix, ak.key_hash, ak.scopes,
		       ak.expires_at, ak.last_used_at, ak.expiry_notified_at, ak.created_at,
		       a.email as account_email
		FROM api_keys ak
		LEFT JOIN accounts a ON ak.account_id = a.id
		ORDER BY ak.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k := &models.APIKey{}
		var scopesJSON []byte

		err := rows.Scan(
			&k.ID,
			&k.AccountID,
			&k.Name,
			&k.Prefix,
			&k.KeyHash,
			&scopesJSON,
			&k.ExpiresAt,
			&k.LastUsedAt,
			&k.ExpiryNotifiedAt,
			&k.CreatedAt,
			&k.AccountEmail,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(scopesJSON, &k.Scopes); err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func (r *APIKeyRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k := &models.APIKey{}
		var scopesJSON []byte

		err := rows.Scan(
			&k.ID,
			&k.AccountID,
			&k.Name,
			&k.Prefix,
			&k.KeyHash,
			&scopesJSON,
			&k.ExpiresAt,
			&k.LastUsedAt,
			&k.ExpiryNotifiedAt,
			&k.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(scopesJSON, &k.Scopes); err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}

// RevokeAPIKey deletes/revokes an API key
func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, keyID string) error {
	query := `DELETE FROM api_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID)
	return err
}

// UpdateExpiry replaces a key's expiration, used to put a rotated key on a
// grace period. Resets the notification marker so the new expiry warns again.
func (r *APIKeyRepository) UpdateExpiry(ctx context.Context, keyID string, expiresAt *time.Time) error {
	query := `UPDATE api_keys SET expires_at = $2, expiry_notified_at = NULL WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID, expiresAt)
	return err
}

// DeleteExpiredKeys deletes all expired API keys (for cleanup/cron job)
func (r *APIKeyRepository) DeleteExpiredKeys(ctx context.Context) error {
	query := `
		DELETE FROM api_keys
		WHERE expires_at IS NOT NULL AND expires_at < $1
	`

	_, err := r.db.ExecContext(ctx, query, time.Now())
	return err
}

// FindExpiringKeys returns API keys that will expire within warningDays days
// and have not yet had a notification email sent (expiry_notified_at IS NULL).
func (r *APIKeyRepository) FindExpiringKeys(ctx context.Context, warningDays int) ([]*models.APIKey, error) {
	cutoff := time.Now().Add(time.Duration(warningDays) * 24 * time.Hour)
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE expires_at IS NOT NULL
		  AND expires_at > NOW()
		  AND expires_at <= $1
		  AND expiry_notified_at IS NULL
		ORDER BY expires_at ASC
	`
	return r.queryMany(ctx, query, cutoff)
}

// MarkExpiryNotificationSent records that the expiry warning email was sent for a key,
// preventing duplicate emails on subsequent job runs.
func (r *APIKeyRepository) MarkExpiryNotificationSent(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET expiry_notified_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), keyID)
	return err
}
