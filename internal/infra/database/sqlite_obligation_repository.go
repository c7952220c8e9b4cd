package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const sqliteObligationColumns = `id, owner_id, kind, title, amount, start_date, due_date, last_fulfilled_date,
               next_cycle_date, recurrence, status, notify_to, renewed_from_id, created_at, updated_at`

// SQLiteObligationRepository keeps dates as 'YYYY-MM-DD' text and timestamps as
// RFC3339 text, so lexical order is chronological order.
type SQLiteObligationRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteObligationRepository(db *sql.DB) *SQLiteObligationRepository {
	return &SQLiteObligationRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func sqliteNullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(obligation.DateLayout)
}

func parseSQLiteDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(obligation.DateLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", ns.String, err)
	}
	return &t, nil
}

func parseSQLiteTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanSQLiteObligation(row rowScanner) (*obligation.Obligation, error) {
	o := &obligation.Obligation{}
	var amount, start, due, last, next, renewedFrom, created, updated sql.NullString
	err := row.Scan(&o.ID, &o.OwnerID, &o.Kind, &o.Title, &amount, &start, &due, &last,
		&next, &o.Recurrence, &o.Status, &o.NotifyTo, &renewedFrom, &created, &updated)
	if err != nil {
		return nil, err
	}
	if amount.Valid && amount.String != "" {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount.String, err)
		}
		o.Amount = decimal.NewNullDecimal(d)
	}
	dueDate, err := parseSQLiteDate(due)
	if err != nil {
		return nil, err
	}
	if dueDate != nil {
		o.DueDate = *dueDate
	}
	if o.StartDate, err = parseSQLiteDate(start); err != nil {
		return nil, err
	}
	if o.LastFulfilledDate, err = parseSQLiteDate(last); err != nil {
		return nil, err
	}
	if o.NextCycleDate, err = parseSQLiteDate(next); err != nil {
		return nil, err
	}
	if t, err := parseSQLiteTime(created); err != nil {
		return nil, err
	} else if t != nil {
		o.CreatedAt = *t
	}
	if t, err := parseSQLiteTime(updated); err != nil {
		return nil, err
	} else if t != nil {
		o.UpdatedAt = *t
	}
	o.RenewedFromID = renewedFrom.String
	return o, nil
}

func (r *SQLiteObligationRepository) insert(ctx context.Context, q querier, o *obligation.Obligation) error {
	now := r.now()
	var amount any
	if o.Amount.Valid {
		amount = o.Amount.Decimal.String()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO obligations (id, owner_id, kind, title, amount, start_date, due_date, recurrence, status, notify_to, renewed_from_id, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OwnerID, string(o.Kind), o.Title, amount, sqliteNullDate(o.StartDate), o.DueDate.Format(obligation.DateLayout),
		string(o.Recurrence), string(o.Status), o.NotifyTo, pgNullString(o.RenewedFromID), sqliteTime(now), sqliteTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.NewErrorf("obligation %s already exists", o.ID).Mark(ierr.ErrValidation)
		}
		return storeErr(err, "error creating obligation")
	}
	o.CreatedAt, o.UpdatedAt = now, now

	for _, rule := range o.Rules {
		_, err := q.ExecContext(ctx,
			`INSERT INTO alert_rules (id, obligation_id, lead_time, enabled, fired) VALUES (?, ?, ?, ?, 0)`,
			rule.ID, o.ID, string(rule.LeadTime), rule.Enabled)
		if err != nil {
			if isUniqueViolation(err) {
				return ierr.NewErrorf("duplicate lead time %s", rule.LeadTime).Mark(ierr.ErrValidation)
			}
			return storeErr(err, "error creating alert rule")
		}
	}
	return nil
}

func (r *SQLiteObligationRepository) Create(ctx context.Context, o *obligation.Obligation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	if err := r.insert(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err, "failed to commit obligation")
	}
	return nil
}

func (r *SQLiteObligationRepository) loadRules(ctx context.Context, q querier, obligations []*obligation.Obligation) error {
	if len(obligations) == 0 {
		return nil
	}
	ids := lo.Map(obligations, func(o *obligation.Obligation, _ int) any { return o.ID })
	rows, err := q.QueryContext(ctx,
		`SELECT id, obligation_id, lead_time, enabled, fired, fired_at
               FROM alert_rules WHERE obligation_id IN (`+placeholders(len(ids))+`) ORDER BY obligation_id, id`,
		ids...)
	if err != nil {
		return storeErr(err, "error querying alert rules")
	}
	defer rows.Close()

	byObligation := lo.KeyBy(obligations, func(o *obligation.Obligation) string { return o.ID })
	for rows.Next() {
		var rule obligation.AlertRule
		var firedAt sql.NullString
		if err := rows.Scan(&rule.ID, &rule.ObligationID, &rule.LeadTime, &rule.Enabled, &rule.Fired, &firedAt); err != nil {
			return storeErr(err, "error scanning alert rule row")
		}
		if rule.FiredAt, err = parseSQLiteTime(firedAt); err != nil {
			return storeErr(err, "error decoding alert rule row")
		}
		if o, ok := byObligation[rule.ObligationID]; ok {
			o.Rules = append(o.Rules, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr(err, "error iterating alert rule rows")
	}
	return nil
}

func (r *SQLiteObligationRepository) getByID(ctx context.Context, q querier, id string) (*obligation.Obligation, error) {
	o, err := scanSQLiteObligation(q.QueryRowContext(ctx,
		`SELECT `+sqliteObligationColumns+` FROM obligations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
		}
		return nil, storeErr(err, "error getting obligation by ID")
	}
	if err := r.loadRules(ctx, q, []*obligation.Obligation{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *SQLiteObligationRepository) GetByID(ctx context.Context, id string) (*obligation.Obligation, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *SQLiteObligationRepository) List(ctx context.Context, filter obligation.ListFilter) ([]*obligation.Obligation, error) {
	return r.list(ctx, r.db, filter)
}

func (r *SQLiteObligationRepository) list(ctx context.Context, q querier, filter obligation.ListFilter) ([]*obligation.Obligation, error) {
	var where []string
	var args []any
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		args = append(args, lo.Map(filter.Statuses, func(s obligation.Status, _ int) any { return string(s) })...)
	}
	query := `SELECT ` + sqliteObligationColumns + ` FROM obligations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY due_date, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "error listing obligations")
	}
	out := make([]*obligation.Obligation, 0)
	for rows.Next() {
		o, err := scanSQLiteObligation(rows)
		if err != nil {
			rows.Close()
			return nil, storeErr(err, "error scanning obligation row")
		}
		out = append(out, o)
	}
	err = rows.Err()
	rows.Close() // release the single connection before loading rules
	if err != nil {
		return nil, storeErr(err, "error iterating obligation rows")
	}
	if err := r.loadRules(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveWithRules runs both queries in one transaction so they see the
// same snapshot.
func (r *SQLiteObligationRepository) ListActiveWithRules(ctx context.Context) ([]*obligation.Obligation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err, "failed to begin read transaction")
	}
	defer rollback(tx)

	out, err := r.list(ctx, tx, obligation.ListFilter{Statuses: []obligation.Status{obligation.StatusActive}})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(err, "failed to commit read transaction")
	}
	return out, nil
}

func (r *SQLiteObligationRepository) transitionFailure(ctx context.Context, q querier, id string, to obligation.Status) error {
	var current string
	err := q.QueryRowContext(ctx, `SELECT status FROM obligations WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return storeErr(err, "error reading obligation status")
	}
	return ierr.NewErrorf("obligation %s cannot move from %s to %s", id, current, to).Mark(ierr.ErrInvalidTransition)
}

func (r *SQLiteObligationRepository) UpdateStatus(ctx context.Context, id string, from []obligation.Status, to obligation.Status) (*obligation.Obligation, error) {
	if len(from) == 0 {
		return nil, r.transitionFailure(ctx, r.db, id, to)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	args := []any{string(to), sqliteTime(r.now()), id}
	args = append(args, lo.Map(from, func(s obligation.Status, _ int) any { return string(s) })...)
	res, err := tx.ExecContext(ctx,
		`UPDATE obligations SET status = ?, updated_at = ?
               WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...)
	if err != nil {
		return nil, storeErr(err, "error updating obligation status")
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, storeErr(err, "error reading affected rows")
	} else if n == 0 {
		return nil, r.transitionFailure(ctx, tx, id, to)
	}

	o, err := r.getByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(err, "failed to commit status change")
	}
	return o, nil
}

func (r *SQLiteObligationRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE obligations SET status = ?, updated_at = ? WHERE status = ? AND due_date < ?`,
		string(obligation.StatusOverdue), sqliteTime(r.now()), string(obligation.StatusActive), asOf.Format(obligation.DateLayout))
	if err != nil {
		return 0, storeErr(err, "error marking obligations overdue")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err, "error reading affected rows")
	}
	return n, nil
}

func (r *SQLiteObligationRepository) Renew(ctx context.Context, renewal obligation.Renewal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	var nextCycle any
	if renewal.Next != nil {
		nextCycle = renewal.Next.DueDate.Format(obligation.DateLayout)
	}
	sources := obligation.SourcesOf(obligation.StatusRenewed)
	args := []any{string(obligation.StatusRenewed), renewal.RenewedOn.Format(obligation.DateLayout), nextCycle,
		sqliteTime(r.now()), renewal.ObligationID}
	args = append(args, lo.Map(sources, func(s obligation.Status, _ int) any { return string(s) })...)
	res, err := tx.ExecContext(ctx,
		`UPDATE obligations
               SET status = ?, last_fulfilled_date = ?, next_cycle_date = ?, updated_at = ?
               WHERE id = ? AND status IN (`+placeholders(len(sources))+`)`,
		args...)
	if err != nil {
		return storeErr(err, "error renewing obligation")
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr(err, "error reading affected rows")
	} else if n == 0 {
		return r.transitionFailure(ctx, tx, renewal.ObligationID, obligation.StatusRenewed)
	}

	if renewal.Next != nil {
		if err := r.insert(ctx, tx, renewal.Next); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err, "failed to commit renewal")
	}
	return nil
}

// Delete removes the obligation and its rules; receipts stay.
func (r *SQLiteObligationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE obligation_id = ?`, id); err != nil {
		return storeErr(err, "error deleting alert rules")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM obligations WHERE id = ?`, id)
	if err != nil {
		return storeErr(err, "error deleting obligation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err, "error reading affected rows")
	}
	if n == 0 {
		return ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err, "failed to commit delete")
	}
	return nil
}
