// Package repositories implements the data access layer (repository pattern)
// for the ticket registry. Each repository type encapsulates all database
// queries for a domain entity. Handlers and services never issue SQL directly
// — all database access goes through this layer, which makes query logic
// testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// AccountRepository handles account database operations
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, address, email, password_hash, display_name, scopes, active, created_at, updated_at`

func (r *AccountRepository) scanOne(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	var scopesJSON []byte

	err := row.Scan(
		&a.ID,
		&a.Address,
		&a.Email,
		&a.PasswordHash,
		&a.DisplayName,
		&scopesJSON,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scopesJSON, &a.Scopes); err != nil {
		return nil, fmt.Errorf("failed to parse account scopes: %w", err)
	}

	return a, nil
}

// CreateAccount creates a new account
func (r *AccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	account.ID = uuid.New().String()
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()

	scopesJSON, err := json.Marshal(account.Scopes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (id, address, email, password_hash, display_name, scopes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		account.ID,
		account.Address,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		scopesJSON,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)

	return err
}

// GetAccountByID retrieves an account by ID
func (r *AccountRepository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetAccountByEmail retrieves an account by email
func (r *AccountRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// GetAccountByAddress retrieves an account by actor address
func (r *AccountRepository) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE address = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, address))
}

// UpdateAccount updates mutable account fields
func (r *AccountRepository) UpdateAccount(ctx context.Context, account *models.Account) error {
	scopesJSON, err := json.Marshal(account.Scopes)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET display_name = $2, scopes = $3, active = $4, updated_at = NOW()
		WHERE id = $1
	`

	_, err = r.db.ExecContext(ctx, query,
		account.ID,
		account.DisplayName,
		scopesJSON,
		account.Active,
	)

	return err
}

// UpdatePasswordHash replaces the stored password hash
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, passwordHash)
	return err
}

// DeleteAccount removes an account. API keys cascade at the database level.
func (r *AccountRepository) DeleteAccount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

// ListAccounts retrieves a paginated list of accounts
func (r *AccountRepository) ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		a := &models.Account{}
		var scopesJSON []byte

		err := rows.Scan(
			&a.ID,
			&a.Address,
			&a.Email,
			&a.PasswordHash,
			&a.DisplayName,
			&scopesJSON,
			&a.Active,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(scopesJSON, &a.Scopes); err != nil {
			return nil, fmt.Errorf("failed to parse account scopes: %w", err)
		}

		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// CountAccounts returns the total number of accounts
func (r *AccountRepository) CountAccounts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
