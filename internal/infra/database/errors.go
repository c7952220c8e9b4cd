package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	ierr "property_due_alerts/internal/errors"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// storeErr marks a driver error as a store failure, keeping the cause.
func storeErr(err error, msg string) error {
	return ierr.WithError(err).WithMessage(msg).Mark(ierr.ErrStoreUnavailable)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// modernc reports constraint failures as plain text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
