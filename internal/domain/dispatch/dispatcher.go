// internal/domain/dispatch/dispatcher.go
package dispatch

import "context"

// Dispatcher delivers a due alert through one channel.
// Implementations live in internal/infra and never touch the claim ledger.
type Dispatcher interface {
	Channel() Channel
	// Recipient resolves who receives the alert on this channel.
	Recipient(alert DueAlert) string
	Send(ctx context.Context, alert DueAlert, receiptID string) error
}
