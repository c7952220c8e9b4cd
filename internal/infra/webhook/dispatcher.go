package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Payload is the JSON document POSTed for every alert.
type Payload struct {
	ReceiptID    string  `json:"receipt_id"`
	ObligationID string  `json:"obligation_id"`
	RuleID       string  `json:"rule_id"`
	Kind         string  `json:"kind"`
	Title        string  `json:"title"`
	DueDate      string  `json:"due_date"`
	FireDate     string  `json:"fire_date"`
	LeadTime     string  `json:"lead_time"`
	Recurrence   string  `json:"recurrence"`
	Amount       *string `json:"amount,omitempty"`
	Subject      string  `json:"subject"`
	Text         string  `json:"text"`
}

func newPayload(a dispatch.DueAlert, receiptID string) Payload {
	p := Payload{
		ReceiptID:    receiptID,
		ObligationID: a.Obligation.ID,
		RuleID:       a.Rule.ID,
		Kind:         string(a.Obligation.Kind),
		Title:        a.Obligation.Title,
		DueDate:      a.Obligation.DueDate.Format(obligation.DateLayout),
		FireDate:     a.FireDate.Format(obligation.DateLayout),
		LeadTime:     string(a.Rule.LeadTime),
		Recurrence:   string(a.Obligation.Recurrence),
		Subject:      dispatch.Subject(a),
		Text:         dispatch.Body(a),
	}
	if a.Obligation.Amount.Valid {
		amount := a.Obligation.Amount.Decimal.StringFixed(2)
		p.Amount = &amount
	}
	return p
}

// Dispatcher POSTs alerts to a webhook. Transport retries happen inside one
// Send call; a failed Send is never retried by the alert cycle.
type Dispatcher struct {
	client *retryablehttp.Client
	url    string
}

func NewDispatcher(url string, retryMax int, log *logrus.Entry) *Dispatcher {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = leveledLogger{log.WithField("component", "webhook_dispatcher")}
	return &Dispatcher{client: client, url: url}
}

func (d *Dispatcher) Channel() dispatch.Channel { return dispatch.ChannelWebhook }

func (d *Dispatcher) Recipient(dispatch.DueAlert) string { return d.url }

func (d *Dispatcher) Send(ctx context.Context, alert dispatch.DueAlert, receiptID string) error {
	body, err := json.Marshal(newPayload(alert, receiptID))
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", receiptID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.with(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.with(kv).Warn(msg) }
