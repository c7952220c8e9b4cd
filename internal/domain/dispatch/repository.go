// internal/domain/dispatch/repository.go
package dispatch

import (
	"context"
	"time"
)

// Claim is the atomic fired-flag flip plus the pending receipt it produces.
type Claim struct {
	RuleID  string
	FiredAt time.Time
	Receipt *Receipt // ID, channel, recipient and summary filled by the caller
}

// Repository is the idempotency ledger: alert rule claims and dispatch receipts.
type Repository interface {
	// ClaimRule sets fired=true on an enabled, unfired rule and inserts the
	// pending receipt in the same transaction. It returns false without side
	// effects when the rule was already fired or is disabled, and ErrNotFound
	// when the rule does not exist.
	ClaimRule(ctx context.Context, c Claim) (bool, error)
	// UpdateReceiptOutcome closes a pending receipt. A receipt that already has
	// a final outcome yields ErrInvalidTransition.
	UpdateReceiptOutcome(ctx context.Context, receiptID string, outcome Outcome, detail string, at time.Time) error
	GetReceipt(ctx context.Context, receiptID string) (*Receipt, error)
	ListReceiptsByRule(ctx context.Context, ruleID string) ([]*Receipt, error)
	ListReceiptsByObligation(ctx context.Context, obligationID string) ([]*Receipt, error)
}
