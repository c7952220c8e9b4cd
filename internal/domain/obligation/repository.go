// internal/domain/obligation/repository.go
package obligation

import (
	"context"
	"time"
)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	OwnerID  string
	Statuses []Status
	Limit    int
}

// Renewal carries everything a repository needs to close one cycle and,
// for recurring obligations, open the next one in the same transaction.
type Renewal struct {
	ObligationID string
	RenewedOn    time.Time
	Next         *Obligation // nil for one-off obligations
}

// Repository defines operations for persisting obligations and their alert rules.
// Implementations mark infrastructure failures with ErrStoreUnavailable and
// missing rows with ErrNotFound.
type Repository interface {
	// Create inserts the obligation together with its rules.
	Create(ctx context.Context, o *Obligation) error
	GetByID(ctx context.Context, id string) (*Obligation, error)
	List(ctx context.Context, filter ListFilter) ([]*Obligation, error)
	// ListActiveWithRules returns every active obligation with all of its rules
	// from one consistent read.
	ListActiveWithRules(ctx context.Context) ([]*Obligation, error)

	// UpdateStatus moves the obligation to `to` only if its current status is
	// one of `from`. It returns ErrInvalidTransition when the guard fails.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Obligation, error)
	// MarkOverdue flips every active obligation due before asOf to overdue.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	// Renew marks the obligation renewed and inserts r.Next (with rules) atomically.
	Renew(ctx context.Context, r Renewal) error
	// Delete removes the obligation and its rules. Dispatch receipts are kept.
	Delete(ctx context.Context, id string) error
}
