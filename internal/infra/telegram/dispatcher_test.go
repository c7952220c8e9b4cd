package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

type fakeClient struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
	err    error
	delay  time.Duration
}

func (f *fakeClient) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	time.Sleep(f.delay)
	f.chatID, f.text, f.opts = chatID, text, options
	return f.err
}

func dueAlert(notifyTo string) dispatch.DueAlert {
	o := testutil.NewObligation("Boiler service", testutil.Date("2024-03-01"), obligation.RecurrenceNone, obligation.LeadTimeOneWeekBefore)
	o.NotifyTo = notifyTo
	return dispatch.DueAlert{Obligation: o.WithoutRules(), Rule: o.Rules[0], FireDate: testutil.Date("2024-02-23")}
}

func TestDispatcher_SendsToDefaultChat(t *testing.T) {
	client := &fakeClient{}
	d := NewDispatcher(client, 1001)
	alert := dueAlert("")

	assert.Equal(t, dispatch.ChannelTelegram, d.Channel())
	assert.Equal(t, "1001", d.Recipient(alert))
	require.NoError(t, d.Send(context.Background(), alert, "rcpt_1"))

	assert.Equal(t, int64(1001), client.chatID)
	assert.Contains(t, client.text, "Boiler service")
	assert.Contains(t, client.text, "Due date: 2024-03-01")
	require.NotNil(t, client.opts.ReplyMarkup)
	buttons := client.opts.ReplyMarkup.InlineKeyboard[0]
	assert.Equal(t, "renew_"+alert.Obligation.ID, buttons[0].Data)
	assert.Equal(t, "cancel_"+alert.Obligation.ID, buttons[1].Data)
}

func TestDispatcher_RecipientOverride(t *testing.T) {
	d := NewDispatcher(&fakeClient{}, 1001)
	assert.Equal(t, "-100200", d.Recipient(dueAlert("-100200")))
	assert.Equal(t, "1001", d.Recipient(dueAlert("ops@example.com")))
}

func TestDispatcher_Errors(t *testing.T) {
	assert.Error(t, NewDispatcher(&fakeClient{}, 0).Send(context.Background(), dueAlert(""), "rcpt_1"))

	err := NewDispatcher(&fakeClient{err: errors.New("Forbidden: bot was blocked by the user")}, 1).
		Send(context.Background(), dueAlert(""), "rcpt_1")
	assert.ErrorContains(t, err, "blocked")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = NewDispatcher(&fakeClient{delay: 200 * time.Millisecond}, 1).Send(ctx, dueAlert(""), "rcpt_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "delivery unknown")
}
