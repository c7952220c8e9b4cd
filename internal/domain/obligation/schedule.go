// internal/domain/obligation/schedule.go
package obligation

import (
	"time"

	ierr "property_due_alerts/internal/errors"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// DateOf returns midnight UTC of t's calendar day, as seen in t's own location.
// All due and fire dates are compared at this granularity.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ierr.WithError(err).
			WithHintf("Invalid date %q, use YYYY-MM-DD", s).
			Mark(ierr.ErrValidation)
	}
	return t, nil
}

// ComputeFireDate returns the calendar day on which the alert for lead time lt
// fires: the due date minus the lead time's day offset.
func ComputeFireDate(o *Obligation, lt LeadTime) (time.Time, error) {
	if o == nil {
		return time.Time{}, ierr.NewError("obligation is nil").Mark(ierr.ErrInvalidObligation)
	}
	if o.DueDate.IsZero() {
		return time.Time{}, ierr.NewErrorf("obligation %s has no due date", o.ID).
			Mark(ierr.ErrInvalidObligation)
	}
	if err := lt.Validate(); err != nil {
		return time.Time{}, err
	}
	return DateOf(o.DueDate).AddDate(0, 0, -lt.DaysBefore()), nil
}

// NextDueDate advances due by one recurrence interval. Month ends are clamped,
// so a cycle due on Jan 31 renews to the last day of February.
func NextDueDate(due time.Time, r Recurrence) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	months := r.Months()
	if months == 0 {
		return time.Time{}, ierr.NewError("one-off obligations have no next cycle").
			Mark(ierr.ErrInvalidTransition)
	}
	d := DateOf(due)
	firstOfTarget := time.Date(d.Year(), d.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := d.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC), nil
}

// EffectiveStatus derives the status as of a given day: an active obligation
// whose due date lies before asOf is overdue.
func (o *Obligation) EffectiveStatus(asOf time.Time) Status {
	if o.Status == StatusActive && DateOf(o.DueDate).Before(DateOf(asOf)) {
		return StatusOverdue
	}
	return o.Status
}

var transitions = map[Status][]Status{
	StatusActive:  {StatusOverdue, StatusRenewed, StatusCancelled},
	StatusOverdue: {StatusRenewed, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf lists the statuses from which to can be reached.
func SourcesOf(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusActive, StatusOverdue, StatusRenewed, StatusCancelled} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
