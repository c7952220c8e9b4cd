// internal/domain/dispatch/receipt.go
package dispatch

import (
	"time"

	ierr "property_due_alerts/internal/errors"
)

// Outcome of one dispatch attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSent    Outcome = "sent"
	OutcomeError   Outcome = "error"
)

// IsFinal reports whether the outcome closes the receipt.
func (o Outcome) IsFinal() bool {
	return o == OutcomeSent || o == OutcomeError
}

// Channel names the transport a receipt was dispatched through.
type Channel string

const (
	ChannelLog      Channel = "log"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWebhook  Channel = "webhook"
)

func (c Channel) Validate() error {
	switch c {
	case ChannelLog, ChannelTelegram, ChannelEmail, ChannelWebhook:
		return nil
	}
	return ierr.NewErrorf("unknown alert channel %q", string(c)).
		WithHint("Channel must be one of: log, telegram, email, webhook").
		Mark(ierr.ErrValidation)
}

// Receipt is the audit record of one dispatch attempt.
// Corresponds to the 'dispatch_receipts' table. AlertRuleID and ObligationID are
// plain id copies so receipts survive deletion of the obligation.
type Receipt struct {
	ID           string
	AlertRuleID  string
	ObligationID string
	Channel      Channel
	Recipient    string
	Summary      string
	Outcome      Outcome
	Detail       string
	Attempt      int
	CreatedAt    time.Time
	CompletedAt  *time.Time
}
