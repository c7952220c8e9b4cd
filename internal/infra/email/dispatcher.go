package email

import (
	"context"
	"fmt"
	"strings"

	"property_due_alerts/internal/domain/dispatch"

	"github.com/resend/resend-go/v2"
)

// sender is the part of resend.EmailsSvc used here.
type sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Config holds the email channel configuration
type Config struct {
	APIKey      string
	FromAddress string
	DefaultTo   string
}

// Dispatcher sends alerts as plain-text email through Resend.
type Dispatcher struct {
	emails      sender
	fromAddress string
	defaultTo   string
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.APIKey == "" || cfg.FromAddress == "" {
		return nil, fmt.Errorf("email channel needs an API key and a from address")
	}
	client := resend.NewClient(cfg.APIKey)
	return newDispatcher(client.Emails, cfg.FromAddress, cfg.DefaultTo), nil
}

func newDispatcher(emails sender, from, defaultTo string) *Dispatcher {
	return &Dispatcher{emails: emails, fromAddress: from, defaultTo: defaultTo}
}

func (d *Dispatcher) Channel() dispatch.Channel { return dispatch.ChannelEmail }

func (d *Dispatcher) Recipient(alert dispatch.DueAlert) string {
	if strings.Contains(alert.Obligation.NotifyTo, "@") {
		return alert.Obligation.NotifyTo
	}
	return d.defaultTo
}

func (d *Dispatcher) Send(ctx context.Context, alert dispatch.DueAlert, receiptID string) error {
	to := d.Recipient(alert)
	if to == "" {
		return fmt.Errorf("no email recipient for obligation %s", alert.Obligation.ID)
	}

	params := &resend.SendEmailRequest{
		From:    d.fromAddress,
		To:      []string{to},
		Subject: dispatch.Subject(alert),
		Text:    dispatch.Body(alert),
		Headers: map[string]string{"X-Entity-Ref-ID": receiptID},
	}
	if _, err := d.emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
