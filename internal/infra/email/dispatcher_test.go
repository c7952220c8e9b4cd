package email

import (
	"context"
	"errors"
	"testing"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/testutil"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got *resend.SendEmailRequest
	err error
}

func (f *fakeSender) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "em_1"}, nil
}

func alertFor(notifyTo string) dispatch.DueAlert {
	o := testutil.NewObligation("Cleaning contract", testutil.Date("2024-03-01"), obligation.RecurrenceMonthly, obligation.LeadTime15DaysBefore)
	o.NotifyTo = notifyTo
	return dispatch.DueAlert{Obligation: o.WithoutRules(), Rule: o.Rules[0], FireDate: testutil.Date("2024-02-15")}
}

func TestDispatcher_Send(t *testing.T) {
	f := &fakeSender{}
	d := newDispatcher(f, "alerts@example.com", "ops@example.com")

	require.NoError(t, d.Send(context.Background(), alertFor(""), "rcpt_1"))
	assert.Equal(t, "alerts@example.com", f.got.From)
	assert.Equal(t, []string{"ops@example.com"}, f.got.To)
	assert.Contains(t, f.got.Subject, "Cleaning contract")
	assert.Contains(t, f.got.Text, "Recurrence: monthly")
	assert.Equal(t, "rcpt_1", f.got.Headers["X-Entity-Ref-ID"])
}

func TestDispatcher_RecipientOverride(t *testing.T) {
	d := newDispatcher(&fakeSender{}, "alerts@example.com", "ops@example.com")
	assert.Equal(t, "owner@example.com", d.Recipient(alertFor("owner@example.com")))
	assert.Equal(t, "ops@example.com", d.Recipient(alertFor("12345")))
	assert.Equal(t, dispatch.ChannelEmail, d.Channel())
}

func TestDispatcher_Errors(t *testing.T) {
	d := newDispatcher(&fakeSender{}, "alerts@example.com", "")
	assert.Error(t, d.Send(context.Background(), alertFor(""), "rcpt_1"))

	d = newDispatcher(&fakeSender{err: errors.New("422 invalid from")}, "alerts@example.com", "ops@example.com")
	assert.ErrorContains(t, d.Send(context.Background(), alertFor(""), "rcpt_1"), "422")

	_, err := NewDispatcher(Config{APIKey: ""})
	assert.Error(t, err)
}
