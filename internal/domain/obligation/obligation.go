// internal/domain/obligation/obligation.go
package obligation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Obligation is a due-tracked item of a managed property: a contract, a service
// renewal or a maintenance window. Corresponds to the 'obligations' table.
type Obligation struct {
	ID                string
	OwnerID           string // tenant scope
	Kind              Kind
	Title             string
	Amount            decimal.NullDecimal
	StartDate         *time.Time
	DueDate           time.Time // anchor date, always midnight UTC
	LastFulfilledDate *time.Time
	NextCycleDate     *time.Time
	Recurrence        Recurrence
	Status            Status
	NotifyTo          string // recipient override for the alert channel
	RenewedFromID     string // previous cycle, empty for the first one
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Rules []AlertRule
}

// AlertRule is one lead-time reminder of an obligation.
// Corresponds to the 'alert_rules' table.
type AlertRule struct {
	ID           string
	ObligationID string
	LeadTime     LeadTime
	Enabled      bool
	Fired        bool // flipped only by the dispatch claim
	FiredAt      *time.Time
}

// IsRecurring returns true if renewing the obligation opens a next cycle.
func (o *Obligation) IsRecurring() bool {
	return o.Recurrence != "" && o.Recurrence != RecurrenceNone
}

// PendingRules returns the enabled rules that have not fired yet.
func (o *Obligation) PendingRules() []AlertRule {
	out := make([]AlertRule, 0, len(o.Rules))
	for _, r := range o.Rules {
		if r.Enabled && !r.Fired {
			out = append(out, r)
		}
	}
	return out
}

// WithoutRules returns a shallow copy with the rule slice dropped, used when the
// obligation travels inside a single alert.
func (o *Obligation) WithoutRules() Obligation {
	cp := *o
	cp.Rules = nil
	return cp
}
