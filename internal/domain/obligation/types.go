// internal/domain/obligation/types.go
package obligation

import (
	ierr "property_due_alerts/internal/errors"
)

// Kind is the closed set of obligation categories.
type Kind string

const (
	KindContract    Kind = "contract"
	KindService     Kind = "service"
	KindMaintenance Kind = "maintenance"
)

func (k Kind) Validate() error {
	switch k {
	case KindContract, KindService, KindMaintenance:
		return nil
	}
	return ierr.NewErrorf("unknown obligation kind %q", string(k)).
		WithHint("Kind must be one of: contract, service, maintenance").
		Mark(ierr.ErrValidation)
}

// Status is the lifecycle state of an obligation.
type Status string

const (
	StatusActive    Status = "active"
	StatusOverdue   Status = "overdue"
	StatusRenewed   Status = "renewed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Validate() error {
	switch s {
	case StatusActive, StatusOverdue, StatusRenewed, StatusCancelled:
		return nil
	}
	return ierr.NewErrorf("unknown obligation status %q", string(s)).
		WithHint("Status must be one of: active, overdue, renewed, cancelled").
		Mark(ierr.ErrValidation)
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusRenewed || s == StatusCancelled
}

// Recurrence is the interval after which a renewed obligation comes due again.
type Recurrence string

const (
	RecurrenceNone       Recurrence = "none"
	RecurrenceMonthly    Recurrence = "monthly"
	RecurrenceBimonthly  Recurrence = "bimonthly"
	RecurrenceQuarterly  Recurrence = "quarterly"
	RecurrenceSemiannual Recurrence = "semiannual"
	RecurrenceAnnual     Recurrence = "annual"
)

func (r Recurrence) Validate() error {
	if _, ok := recurrenceMonths[r]; ok {
		return nil
	}
	return ierr.NewErrorf("unknown recurrence %q", string(r)).
		WithHint("Recurrence must be one of: none, monthly, bimonthly, quarterly, semiannual, annual").
		Mark(ierr.ErrValidation)
}

// Months is the length of one cycle in calendar months, 0 for one-off obligations.
func (r Recurrence) Months() int {
	return recurrenceMonths[r]
}

var recurrenceMonths = map[Recurrence]int{
	RecurrenceNone:       0,
	RecurrenceMonthly:    1,
	RecurrenceBimonthly:  2,
	RecurrenceQuarterly:  3,
	RecurrenceSemiannual: 6,
	RecurrenceAnnual:     12,
}

// LeadTime says how long before the due date an alert fires.
type LeadTime string

const (
	LeadTimeOnDueDate      LeadTime = "on-due-date"
	LeadTimeOneDayBefore   LeadTime = "1-day-before"
	LeadTimeOneWeekBefore  LeadTime = "1-week-before"
	LeadTime15DaysBefore   LeadTime = "15-days-before"
	LeadTimeOneMonthBefore LeadTime = "1-month-before"
)

// "1-month-before" is a flat 30 days, not a calendar month.
var leadTimeDays = map[LeadTime]int{
	LeadTimeOnDueDate:      0,
	LeadTimeOneDayBefore:   1,
	LeadTimeOneWeekBefore:  7,
	LeadTime15DaysBefore:   15,
	LeadTimeOneMonthBefore: 30,
}

// AllLeadTimes lists every lead time from the earliest firing to the latest.
func AllLeadTimes() []LeadTime {
	return []LeadTime{
		LeadTimeOneMonthBefore,
		LeadTime15DaysBefore,
		LeadTimeOneWeekBefore,
		LeadTimeOneDayBefore,
		LeadTimeOnDueDate,
	}
}

func (l LeadTime) Validate() error {
	if _, ok := leadTimeDays[l]; ok {
		return nil
	}
	return ierr.NewErrorf("unknown lead time %q", string(l)).
		WithHint("Lead time must be one of: on-due-date, 1-day-before, 1-week-before, 15-days-before, 1-month-before").
		Mark(ierr.ErrValidation)
}

// DaysBefore is the number of calendar days subtracted from the due date.
func (l LeadTime) DaysBefore() int {
	return leadTimeDays[l]
}

// Label is the human readable form used in notifications.
func (l LeadTime) Label() string {
	switch l {
	case LeadTimeOnDueDate:
		return "due today"
	case LeadTimeOneDayBefore:
		return "due tomorrow"
	case LeadTimeOneWeekBefore:
		return "due in 1 week"
	case LeadTime15DaysBefore:
		return "due in 15 days"
	case LeadTimeOneMonthBefore:
		return "due in 1 month"
	default:
		return string(l)
	}
}

// ParseLeadTimes parses a comma separated list such as
// "on-due-date,1-week-before". Blank items are ignored.
func ParseLeadTimes(list []string) ([]LeadTime, error) {
	out := make([]LeadTime, 0, len(list))
	for _, raw := range list {
		if raw == "" {
			continue
		}
		lt := LeadTime(raw)
		if err := lt.Validate(); err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, nil
}
