// internal/app/tracker.go
package app

import (
	"context"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	ierr "property_due_alerts/internal/errors"
	"property_due_alerts/internal/types"

	"github.com/sirupsen/logrus"
)

// ClaimRequest describes the alert about to be dispatched and where it goes.
type ClaimRequest struct {
	Alert     dispatch.DueAlert
	Channel   dispatch.Channel
	Recipient string
}

// DispatchTracker is the idempotency gate in front of every dispatch: only the
// caller that wins TryClaim may send.
type DispatchTracker struct {
	ledger dispatch.Repository
	now    func() time.Time
	logger *logrus.Entry
}

func NewDispatchTracker(ledger dispatch.Repository, logger *logrus.Entry) *DispatchTracker {
	return &DispatchTracker{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithField("component", "dispatch_tracker"),
	}
}

// TryClaim flips the rule's fired flag and writes a pending receipt. A rule that
// is already fired, or whose obligation stopped being active since the scan,
// yields (nil, false, nil).
func (t *DispatchTracker) TryClaim(ctx context.Context, req ClaimRequest) (*dispatch.Receipt, bool, error) {
	now := t.now()
	receipt := &dispatch.Receipt{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RECEIPT),
		AlertRuleID:  req.Alert.Rule.ID,
		ObligationID: req.Alert.Obligation.ID,
		Channel:      req.Channel,
		Recipient:    req.Recipient,
		Summary:      dispatch.Summary(req.Alert),
		Outcome:      dispatch.OutcomePending,
		Attempt:      1,
		CreatedAt:    now,
	}

	claimed, err := t.ledger.ClaimRule(ctx, dispatch.Claim{
		RuleID:  req.Alert.Rule.ID,
		FiredAt: now,
		Receipt: receipt,
	})
	if err != nil {
		if ierr.Is(err, ierr.ErrNotFound) || ierr.Is(err, ierr.ErrStoreUnavailable) {
			return nil, false, err
		}
		return nil, false, ierr.WithError(err).WithMessagef("claim rule %s", req.Alert.Rule.ID).Mark(ierr.ErrStoreUnavailable)
	}
	if !claimed {
		t.logger.WithFields(logrus.Fields{
			"rule_id":       req.Alert.Rule.ID,
			"obligation_id": req.Alert.Obligation.ID,
		}).Debug("Rule already claimed")
		return nil, false, nil
	}
	return receipt, true, nil
}

// RecordOutcome closes a pending receipt as sent or error. The rule stays fired
// either way.
func (t *DispatchTracker) RecordOutcome(ctx context.Context, receiptID string, outcome dispatch.Outcome, detail string) error {
	if !outcome.IsFinal() {
		return ierr.NewErrorf("outcome %q is not final", string(outcome)).Mark(ierr.ErrValidation)
	}
	if err := t.ledger.UpdateReceiptOutcome(ctx, receiptID, outcome, detail, t.now()); err != nil {
		t.logger.WithError(err).WithField("receipt_id", receiptID).Error("Failed to record dispatch outcome")
		return err
	}
	return nil
}
