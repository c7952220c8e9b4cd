package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"

	"github.com/lib/pq"
	"github.com/samber/lo"
)

const pgObligationColumns = `id, owner_id, kind, title, amount, start_date, due_date, last_fulfilled_date,
               next_cycle_date, recurrence, status, notify_to, renewed_from_id, created_at, updated_at`

type PostgresObligationRepository struct {
	db *sql.DB
}

func NewPostgresObligationRepository(db *sql.DB) *PostgresObligationRepository {
	return &PostgresObligationRepository{db: db}
}

// pgDate passes a calendar date as text so the server never shifts it by a
// session time zone.
func pgDate(t time.Time) string {
	return t.Format(obligation.DateLayout)
}

func pgNullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return pgDate(*t)
}

func pgNullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTimePtr(nt sql.NullTime, date bool) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	if date {
		t = obligation.DateOf(t)
	}
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPgObligation(row rowScanner) (*obligation.Obligation, error) {
	o := &obligation.Obligation{}
	var start, last, next sql.NullTime
	var renewedFrom sql.NullString
	err := row.Scan(&o.ID, &o.OwnerID, &o.Kind, &o.Title, &o.Amount, &start, &o.DueDate, &last,
		&next, &o.Recurrence, &o.Status, &o.NotifyTo, &renewedFrom, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.DueDate = obligation.DateOf(o.DueDate)
	o.StartDate = nullTimePtr(start, true)
	o.LastFulfilledDate = nullTimePtr(last, true)
	o.NextCycleDate = nullTimePtr(next, true)
	o.RenewedFromID = renewedFrom.String
	return o, nil
}

func (r *PostgresObligationRepository) insert(ctx context.Context, q querier, o *obligation.Obligation) error {
	query := `INSERT INTO obligations (id, owner_id, kind, title, amount, start_date, due_date, recurrence, status, notify_to, renewed_from_id)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
               RETURNING created_at, updated_at`
	err := q.QueryRowContext(ctx, query, o.ID, o.OwnerID, o.Kind, o.Title, o.Amount, pgNullDate(o.StartDate),
		pgDate(o.DueDate), o.Recurrence, o.Status, o.NotifyTo, pgNullString(o.RenewedFromID)).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.NewErrorf("obligation %s already exists", o.ID).Mark(ierr.ErrValidation)
		}
		return storeErr(err, "error creating obligation")
	}

	for _, rule := range o.Rules {
		_, err := q.ExecContext(ctx,
			`INSERT INTO alert_rules (id, obligation_id, lead_time, enabled, fired) VALUES ($1, $2, $3, $4, FALSE)`,
			rule.ID, o.ID, rule.LeadTime, rule.Enabled)
		if err != nil {
			if isUniqueViolation(err) {
				return ierr.NewErrorf("duplicate lead time %s", rule.LeadTime).Mark(ierr.ErrValidation)
			}
			return storeErr(err, "error creating alert rule")
		}
	}
	return nil
}

// Create stores the obligation and its rules in one transaction.
func (r *PostgresObligationRepository) Create(ctx context.Context, o *obligation.Obligation) error {
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

func (r *PostgresObligationRepository) loadRules(ctx context.Context, q querier, obligations []*obligation.Obligation) error {
	if len(obligations) == 0 {
		return nil
	}
	ids := lo.Map(obligations, func(o *obligation.Obligation, _ int) string { return o.ID })
	rows, err := q.QueryContext(ctx,
		`SELECT id, obligation_id, lead_time, enabled, fired, fired_at
               FROM alert_rules WHERE obligation_id = ANY($1) ORDER BY obligation_id, id`,
		pq.Array(ids))
	if err != nil {
		return storeErr(err, "error querying alert rules")
	}
	defer rows.Close()

	byObligation := lo.KeyBy(obligations, func(o *obligation.Obligation) string { return o.ID })
	for rows.Next() {
		var rule obligation.AlertRule
		var firedAt sql.NullTime
		if err := rows.Scan(&rule.ID, &rule.ObligationID, &rule.LeadTime, &rule.Enabled, &rule.Fired, &firedAt); err != nil {
			return storeErr(err, "error scanning alert rule row")
		}
		rule.FiredAt = nullTimePtr(firedAt, false)
		if o, ok := byObligation[rule.ObligationID]; ok {
			o.Rules = append(o.Rules, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr(err, "error iterating alert rule rows")
	}
	return nil
}

func (r *PostgresObligationRepository) GetByID(ctx context.Context, id string) (*obligation.Obligation, error) {
	o, err := scanPgObligation(r.db.QueryRowContext(ctx,
		`SELECT `+pgObligationColumns+` FROM obligations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
		}
		return nil, storeErr(err, "error getting obligation by ID")
	}
	if err := r.loadRules(ctx, r.db, []*obligation.Obligation{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresObligationRepository) List(ctx context.Context, filter obligation.ListFilter) ([]*obligation.Obligation, error) {
	return r.list(ctx, r.db, filter)
}

func (r *PostgresObligationRepository) list(ctx context.Context, q querier, filter obligation.ListFilter) ([]*obligation.Obligation, error) {
	statuses := lo.Map(filter.Statuses, func(s obligation.Status, _ int) string { return string(s) })
	query := `SELECT ` + pgObligationColumns + `
               FROM obligations
               WHERE ($1 = '' OR owner_id = $1)
                 AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
               ORDER BY due_date, id
               LIMIT NULLIF($3, 0)`
	rows, err := q.QueryContext(ctx, query, filter.OwnerID, pq.Array(statuses), filter.Limit)
	if err != nil {
		return nil, storeErr(err, "error listing obligations")
	}
	defer rows.Close()

	out := make([]*obligation.Obligation, 0)
	for rows.Next() {
		o, err := scanPgObligation(rows)
		if err != nil {
			return nil, storeErr(err, "error scanning obligation row")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "error iterating obligation rows")
	}
	if err := r.loadRules(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveWithRules reads obligations and rules in one REPEATABLE READ
// snapshot, so a rule fired between the two queries cannot show up unfired.
func (r *PostgresObligationRepository) ListActiveWithRules(ctx context.Context) ([]*obligation.Obligation, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
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

// transitionFailure explains why a guarded UPDATE touched no row.
func (r *PostgresObligationRepository) transitionFailure(ctx context.Context, q querier, id string, to obligation.Status) error {
	var current obligation.Status
	err := q.QueryRowContext(ctx, `SELECT status FROM obligations WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return storeErr(err, "error reading obligation status")
	}
	return ierr.NewErrorf("obligation %s cannot move from %s to %s", id, current, to).Mark(ierr.ErrInvalidTransition)
}

func (r *PostgresObligationRepository) UpdateStatus(ctx context.Context, id string, from []obligation.Status, to obligation.Status) (*obligation.Obligation, error) {
	sources := lo.Map(from, func(s obligation.Status, _ int) string { return string(s) })
	o, err := scanPgObligation(r.db.QueryRowContext(ctx,
		`UPDATE obligations SET status = $1, updated_at = NOW()
               WHERE id = $2 AND status = ANY($3::text[])
               RETURNING `+pgObligationColumns,
		to, id, pq.Array(sources)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.transitionFailure(ctx, r.db, id, to)
		}
		return nil, storeErr(err, "error updating obligation status")
	}
	if err := r.loadRules(ctx, r.db, []*obligation.Obligation{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresObligationRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE obligations SET status = $1, updated_at = NOW()
               WHERE status = $2 AND due_date < $3::date`,
		obligation.StatusOverdue, obligation.StatusActive, pgDate(asOf))
	if err != nil {
		return 0, storeErr(err, "error marking obligations overdue")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err, "error reading affected rows")
	}
	return n, nil
}

// Renew closes the cycle and inserts the next one atomically.
func (r *PostgresObligationRepository) Renew(ctx context.Context, renewal obligation.Renewal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "failed to begin transaction")
	}
	defer rollback(tx)

	var nextCycle any
	if renewal.Next != nil {
		nextCycle = pgDate(renewal.Next.DueDate)
	}
	sources := lo.Map(obligation.SourcesOf(obligation.StatusRenewed), func(s obligation.Status, _ int) string { return string(s) })
	res, err := tx.ExecContext(ctx,
		`UPDATE obligations
               SET status = $1, last_fulfilled_date = $2, next_cycle_date = $3, updated_at = NOW()
               WHERE id = $4 AND status = ANY($5::text[])`,
		obligation.StatusRenewed, pgDate(renewal.RenewedOn), nextCycle, renewal.ObligationID, pq.Array(sources))
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

// Delete removes the obligation; alert rules go with it through the foreign
// key, receipts stay.
func (r *PostgresObligationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM obligations WHERE id = $1`, id)
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
	return nil
}
