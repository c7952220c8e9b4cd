package testutil

import (
	"context"
	"sync"
	"time"

	"property_due_alerts/internal/domain/dispatch"
)

// SentAlert is one call observed by RecordingDispatcher.
type SentAlert struct {
	Alert     dispatch.DueAlert
	ReceiptID string
}

// RecordingDispatcher is a dispatch.Dispatcher that remembers every Send.
// FailFor decides per alert whether Send fails; Delay simulates a slow channel.
type RecordingDispatcher struct {
	mu      sync.Mutex
	sent    []SentAlert
	FailFor func(dispatch.DueAlert) error
	Delay   time.Duration
}

func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

func (d *RecordingDispatcher) Channel() dispatch.Channel { return dispatch.ChannelLog }

func (d *RecordingDispatcher) Recipient(alert dispatch.DueAlert) string {
	if alert.Obligation.NotifyTo != "" {
		return alert.Obligation.NotifyTo
	}
	return "test-recipient"
}

func (d *RecordingDispatcher) Send(ctx context.Context, alert dispatch.DueAlert, receiptID string) error {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	d.sent = append(d.sent, SentAlert{Alert: alert, ReceiptID: receiptID})
	d.mu.Unlock()
	if d.FailFor != nil {
		return d.FailFor(alert)
	}
	return nil
}

// Sent returns a copy of the recorded calls.
func (d *RecordingDispatcher) Sent() []SentAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentAlert, len(d.sent))
	copy(out, d.sent)
	return out
}
