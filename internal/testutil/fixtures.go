package testutil

import (
	"time"

	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/types"
)

// Date parses YYYY-MM-DD and panics on bad input. Test helper only.
func Date(s string) time.Time {
	t, err := time.Parse(obligation.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// NewObligation builds an active obligation with one enabled, unfired rule per
// lead time.
func NewObligation(title string, due time.Time, recurrence obligation.Recurrence, leadTimes ...obligation.LeadTime) *obligation.Obligation {
	o := &obligation.Obligation{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OBLIGATION),
		OwnerID:    "owner_1",
		Kind:       obligation.KindContract,
		Title:      title,
		DueDate:    due,
		Recurrence: recurrence,
		Status:     obligation.StatusActive,
	}
	for _, lt := range leadTimes {
		o.Rules = append(o.Rules, obligation.AlertRule{
			ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALERT_RULE),
			ObligationID: o.ID,
			LeadTime:     lt,
			Enabled:      true,
		})
	}
	return o
}

// RuleFor returns the rule of o with the given lead time.
func RuleFor(o *obligation.Obligation, lt obligation.LeadTime) obligation.AlertRule {
	for _, r := range o.Rules {
		if r.LeadTime == lt {
			return r
		}
	}
	panic("no rule for lead time " + string(lt))
}
