package app

import (
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
)

func claimFor(rule obligation.AlertRule, receiptID string) dispatch.Claim {
	now := time.Now().UTC()
	return dispatch.Claim{
		RuleID:  rule.ID,
		FiredAt: now,
		Receipt: &dispatch.Receipt{
			ID:           receiptID,
			AlertRuleID:  rule.ID,
			ObligationID: rule.ObligationID,
			Channel:      dispatch.ChannelLog,
			Outcome:      dispatch.OutcomePending,
			Attempt:      1,
			CreatedAt:    now,
		},
	}
}
