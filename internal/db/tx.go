package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Execer is the query surface shared by *sql.DB and *sql.Tx. Repositories
// resolve their executor through Ext so the same method works standalone or
// inside a transaction started by a service.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// WithTx runs fn inside a database transaction. The transaction is carried in
// the context so repository methods called from fn join it via Ext. If the
// context already carries a transaction, fn runs inside it and commit/rollback
// is left to the outermost caller.
//
// Every domain operation runs through WithTx: a returned error rolls the
// transaction back, which also discards any transition record inserted during
// the operation. Failed operations therefore leave no trace.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Ext resolves the executor for a repository call: the ambient transaction if
// one is in the context, otherwise the plain connection pool.
func Ext(ctx context.Context, db *sql.DB) Execer {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
