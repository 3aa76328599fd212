// transition_repository.go implements TransitionRepository: the write path
// used inside operation transactions, the outbox claim/mark path used by the
// relay job, and filtered admin reads.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
)

// TransitionRepository handles database operations for transition records
type TransitionRepository struct {
	db *sql.DB
}

// NewTransitionRepository creates a new transition repository
func NewTransitionRepository(database *sql.DB) *TransitionRepository {
	return &TransitionRepository{db: database}
}

// TransitionFilters contains filters for querying transition records
type TransitionFilters struct {
	RecordType          *string
	ActorAddress        *string
	OrganizationAddress *string
	EventAddress        *string
	StartDate           *time.Time
	EndDate             *time.Time
}

const transitionColumns = `id, record_type, entity_address, actor_address, organization_address, event_address, ticket_id, amount, fee_amount, counterparty_address, metadata, created_at, shipped_at, archived_at`

// Insert writes a transition record. Services call this inside the operation
// transaction, so the record commits or rolls back together with the
// transition it describes.
func (r *TransitionRepository) Insert(ctx context.Context, t *models.Transition) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()

	var metadataJSON []byte
	var err error
	if t.Metadata != nil {
		metadataJSON, err = json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal transition metadata: %w", err)
		}
	} else {
		metadataJSON = []byte(`{}`)
	}

	query := `
		INSERT INTO transitions (id, record_type, entity_address, actor_address, organization_address, event_address, ticket_id, amount, fee_amount, counterparty_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = db.Ext(ctx, r.db).ExecContext(ctx, query,
		t.ID,
		t.RecordType,
		t.EntityAddress,
		t.ActorAddress,
		t.OrganizationAddress,
		t.EventAddress,
		t.TicketID,
		t.Amount,
		t.FeeAmount,
		t.CounterpartyAddress,
		metadataJSON,
		t.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}

	return nil
}

func scanTransitionRows(rows *sql.Rows) ([]*models.Transition, error) {
	records := make([]*models.Transition, 0)
	for rows.Next() {
		t := &models.Transition{}
		var metadataJSON []byte

		err := rows.Scan(
			&t.ID,
			&t.RecordType,
			&t.EntityAddress,
			&t.ActorAddress,
			&t.OrganizationAddress,
			&t.EventAddress,
			&t.TicketID,
			&t.Amount,
			&t.FeeAmount,
			&t.CounterpartyAddress,
			&metadataJSON,
			&t.CreatedAt,
			&t.ShippedAt,
			&t.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transition metadata: %w", err)
			}
		}

		records = append(records, t)
	}
	return records, rows.Err()
}

// ClaimUnshipped selects up to limit unshipped records oldest-first, locking
// them with SKIP LOCKED so concurrent relay instances never double-ship. The
// caller must hold a transaction.
func (r *TransitionRepository) ClaimUnshipped(ctx context.Context, limit int) ([]*models.Transition, error) {
	query := `
		SELECT ` + transitionColumns + `
		FROM transitions
		WHERE shipped_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim unshipped transitions: %w", err)
	}
	defer rows.Close()

	return scanTransitionRows(rows)
}

// MarkShipped stamps shipped_at on the given records
func (r *TransitionRepository) MarkShipped(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE transitions SET shipped_at = NOW() WHERE id = ANY($1)`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark transitions shipped: %w", err)
	}

	return nil
}

// ListShippedUnarchived selects shipped records not yet archived, oldest-first
func (r *TransitionRepository) ListShippedUnarchived(ctx context.Context, limit int) ([]*models.Transition, error) {
	query := `
		SELECT ` + transitionColumns + `
		FROM transitions
		WHERE shipped_at IS NOT NULL AND archived_at IS NULL
		ORDER BY shipped_at ASC
		LIMIT $1
	`

	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unarchived transitions: %w", err)
	}
	defer rows.Close()

	return scanTransitionRows(rows)
}

// MarkArchived stamps archived_at on the given records
func (r *TransitionRepository) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE transitions SET archived_at = NOW() WHERE id = ANY($1)`
	_, err := db.Ext(ctx, r.db).ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark transitions archived: %w", err)
	}

	return nil
}

// List retrieves transition records with optional filters and pagination
func (r *TransitionRepository) List(ctx context.Context, filters TransitionFilters, limit, offset int) ([]*models.Transition, int, error) {
	countQuery := `SELECT COUNT(*) FROM transitions WHERE 1=1`
	query := `SELECT ` + transitionColumns + ` FROM transitions WHERE 1=1`

	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.RecordType != nil {
		addFilter(` AND record_type = $%d`, *filters.RecordType)
	}
	if filters.ActorAddress != nil {
		addFilter(` AND actor_address = $%d`, *filters.ActorAddress)
	}
	if filters.OrganizationAddress != nil {
		addFilter(` AND organization_address = $%d`, *filters.OrganizationAddress)
	}
	if filters.EventAddress != nil {
		addFilter(` AND event_address = $%d`, *filters.EventAddress)
	}
	if filters.StartDate != nil {
		addFilter(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	err := db.Ext(ctx, r.db).QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transitions: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := db.Ext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	records, err := scanTransitionRows(rows)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Get retrieves a single transition record by ID
func (r *TransitionRepository) Get(ctx context.Context, id string) (*models.Transition, error) {
	query := `SELECT ` + transitionColumns + ` FROM transitions WHERE id = $1`

	t := &models.Transition{}
	var metadataJSON []byte

	err := db.Ext(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.RecordType,
		&t.EntityAddress,
		&t.ActorAddress,
		&t.OrganizationAddress,
		&t.EventAddress,
		&t.TicketID,
		&t.Amount,
		&t.FeeAmount,
		&t.CounterpartyAddress,
		&metadataJSON,
		&t.CreatedAt,
		&t.ShippedAt,
		&t.ArchivedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transition: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition metadata: %w", err)
		}
	}

	return t, nil
}
