package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	ierr "property_due_alerts/internal/errors"
)

const sqliteReceiptColumns = pgReceiptColumns

type SQLiteDispatchRepository struct {
	db *sql.DB
}

func NewSQLiteDispatchRepository(db *sql.DB) *SQLiteDispatchRepository {
	return &SQLiteDispatchRepository{db: db}
}

func scanSQLiteReceipt(row rowScanner) (*dispatch.Receipt, error) {
	rc := &dispatch.Receipt{}
	var created, completed sql.NullString
	err := row.Scan(&rc.ID, &rc.AlertRuleID, &rc.ObligationID, &rc.Channel, &rc.Recipient, &rc.Summary,
		&rc.Outcome, &rc.Detail, &rc.Attempt, &created, &completed)
	if err != nil {
		return nil, err
	}
	if t, err := parseSQLiteTime(created); err != nil {
		return nil, err
	} else if t != nil {
		rc.CreatedAt = *t
	}
	if rc.CompletedAt, err = parseSQLiteTime(completed); err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *SQLiteDispatchRepository) ClaimRule(ctx context.Context, c dispatch.Claim) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE alert_rules SET fired = 1, fired_at = ?
               WHERE id = ? AND fired = 0 AND enabled = 1
                 AND obligation_id IN (SELECT id FROM obligations WHERE status = 'active')`,
		sqliteTime(c.FiredAt), c.RuleID)
	if err != nil {
		return false, storeErr(err, "error claiming alert rule")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err, "error reading affected rows")
	}
	if n == 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_rules WHERE id = ?`, c.RuleID).Scan(&count); err != nil {
			return false, storeErr(err, "error checking alert rule")
		}
		if count == 0 {
			return false, ierr.NewErrorf("alert rule %s not found", c.RuleID).Mark(ierr.ErrNotFound)
		}
		return false, nil
	}

	rc := c.Receipt
	_, err = tx.ExecContext(ctx,
		`INSERT INTO dispatch_receipts (id, alert_rule_id, obligation_id, channel, recipient, summary, outcome, detail, attempt, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.AlertRuleID, rc.ObligationID, string(rc.Channel), rc.Recipient, rc.Summary, string(rc.Outcome), rc.Detail,
		rc.Attempt, sqliteTime(c.FiredAt))
	if err != nil {
		return false, storeErr(err, "error creating dispatch receipt")
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr(err, "failed to commit claim")
	}
	rc.CreatedAt = c.FiredAt
	return true, nil
}

func (r *SQLiteDispatchRepository) UpdateReceiptOutcome(ctx context.Context, receiptID string, outcome dispatch.Outcome, detail string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dispatch_receipts SET outcome = ?, detail = ?, completed_at = ? WHERE id = ? AND outcome = ?`,
		string(outcome), detail, sqliteTime(at), receiptID, string(dispatch.OutcomePending))
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

func (r *SQLiteDispatchRepository) GetReceipt(ctx context.Context, receiptID string) (*dispatch.Receipt, error) {
	rc, err := scanSQLiteReceipt(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteReceiptColumns+` FROM dispatch_receipts WHERE id = ?`, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("receipt %s not found", receiptID).Mark(ierr.ErrNotFound)
		}
		return nil, storeErr(err, "error getting dispatch receipt")
	}
	return rc, nil
}

func (r *SQLiteDispatchRepository) listReceipts(ctx context.Context, column, arg string) ([]*dispatch.Receipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteReceiptColumns+` FROM dispatch_receipts WHERE `+column+` = ? ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, storeErr(err, "error querying dispatch receipts")
	}
	defer rows.Close()

	out := make([]*dispatch.Receipt, 0)
	for rows.Next() {
		rc, err := scanSQLiteReceipt(rows)
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

func (r *SQLiteDispatchRepository) ListReceiptsByRule(ctx context.Context, ruleID string) ([]*dispatch.Receipt, error) {
	return r.listReceipts(ctx, "alert_rule_id", ruleID)
}

func (r *SQLiteDispatchRepository) ListReceiptsByObligation(ctx context.Context, obligationID string) ([]*dispatch.Receipt, error) {
	return r.listReceipts(ctx, "obligation_id", obligationID)
}
