package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	ierr "property_due_alerts/internal/errors"
)

const pgReceiptColumns = `id, alert_rule_id, obligation_id, channel, recipient, summary, outcome, detail, attempt, created_at, completed_at`

type PostgresDispatchRepository struct {
	db *sql.DB
}

func NewPostgresDispatchRepository(db *sql.DB) *PostgresDispatchRepository {
	return &PostgresDispatchRepository{db: db}
}

func scanPgReceipt(row rowScanner) (*dispatch.Receipt, error) {
	rc := &dispatch.Receipt{}
	var completedAt sql.NullTime
	err := row.Scan(&rc.ID, &rc.AlertRuleID, &rc.ObligationID, &rc.Channel, &rc.Recipient, &rc.Summary,
		&rc.Outcome, &rc.Detail, &rc.Attempt, &rc.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	rc.CompletedAt = nullTimePtr(completedAt, false)
	return rc, nil
}

// ClaimRule flips fired on an enabled, unfired rule of an active obligation and
// writes the pending receipt in the same transaction. Exactly one concurrent
// caller sees true.
func (r *PostgresDispatchRepository) ClaimRule(ctx context.Context, c dispatch.Claim) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE alert_rules SET fired = TRUE, fired_at = $1
               WHERE id = $2 AND fired = FALSE AND enabled = TRUE
                 AND obligation_id IN (SELECT id FROM obligations WHERE status = 'active')`,
		c.FiredAt, c.RuleID)
	if err != nil {
		return false, storeErr(err, "error claiming alert rule")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err, "error reading affected rows")
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alert_rules WHERE id = $1)`, c.RuleID).Scan(&exists); err != nil {
			return false, storeErr(err, "error checking alert rule")
		}
		if !exists {
			return false, ierr.NewErrorf("alert rule %s not found", c.RuleID).Mark(ierr.ErrNotFound)
		}
		return false, nil
	}

	rc := c.Receipt
	_, err = tx.ExecContext(ctx,
		`INSERT INTO dispatch_receipts (id, alert_rule_id, obligation_id, channel, recipient, summary, outcome, detail, attempt, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rc.ID, rc.AlertRuleID, rc.ObligationID, rc.Channel, rc.Recipient, rc.Summary, rc.Outcome, rc.Detail, rc.Attempt, c.FiredAt)
	if err != nil {
		return false, storeErr(err, "error creating dispatch receipt")
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr(err, "failed to commit claim")
	}
	rc.CreatedAt = c.FiredAt
	return true, nil
}

// UpdateReceiptOutcome only closes a pending receipt.
func (r *PostgresDispatchRepository) UpdateReceiptOutcome(ctx context.Context, receiptID string, outcome dispatch.Outcome, detail string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dispatch_receipts SET outcome = $1, detail = $2, completed_at = $3
               WHERE id = $4 AND outcome = $5`,
		outcome, detail, at, receiptID, dispatch.OutcomePending)
	if err != nil {
		return storeErr(err, "error updating dispatch receipt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err, "error reading affected rows")
	}
	if n > 0 {
		return nil
	}

	current, err := r.GetReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	return ierr.NewErrorf("receipt %s is already %s", receiptID, current.Outcome).Mark(ierr.ErrInvalidTransition)
}

func (r *PostgresDispatchRepository) GetReceipt(ctx context.Context, receiptID string) (*dispatch.Receipt, error) {
	rc, err := scanPgReceipt(r.db.QueryRowContext(ctx,
		`SELECT `+pgReceiptColumns+` FROM dispatch_receipts WHERE id = $1`, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("receipt %s not found", receiptID).Mark(ierr.ErrNotFound)
		}
		return nil, storeErr(err, "error getting dispatch receipt")
	}
	return rc, nil
}

func (r *PostgresDispatchRepository) listReceipts(ctx context.Context, where string, arg string) ([]*dispatch.Receipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgReceiptColumns+` FROM dispatch_receipts WHERE `+where+` = $1 ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, storeErr(err, "error querying dispatch receipts")
	}
	defer rows.Close()

	out := make([]*dispatch.Receipt, 0)
	for rows.Next() {
		rc, err := scanPgReceipt(rows)
		if err != nil {
			return nil, storeErr(err, "error scanning dispatch receipt row")
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "error iterating dispatch receipt rows")
	}
	return out, nil
}

func (r *PostgresDispatchRepository) ListReceiptsByRule(ctx context.Context, ruleID string) ([]*dispatch.Receipt, error) {
	return r.listReceipts(ctx, "alert_rule_id", ruleID)
}

func (r *PostgresDispatchRepository) ListReceiptsByObligation(ctx context.Context, obligationID string) ([]*dispatch.Receipt, error) {
	return r.listReceipts(ctx, "obligation_id", obligationID)
}
