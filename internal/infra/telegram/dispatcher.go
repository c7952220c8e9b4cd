package telegram

import (
	"context"
	"fmt"
	"strconv"

	"property_due_alerts/internal/domain/dispatch"

	"gopkg.in/telebot.v3"
)

const (
	callbackRenew  = "renew_"
	callbackCancel = "cancel_"
)

// Dispatcher delivers alerts as chat messages with inline buttons to close the
// obligation from the chat.
type Dispatcher struct {
	client        Client
	defaultChatID int64
}

func NewDispatcher(client Client, defaultChatID int64) *Dispatcher {
	return &Dispatcher{client: client, defaultChatID: defaultChatID}
}

func (d *Dispatcher) Channel() dispatch.Channel { return dispatch.ChannelTelegram }

// Recipient is the obligation's chat id override when it parses as one,
// otherwise the configured chat.
func (d *Dispatcher) Recipient(alert dispatch.DueAlert) string {
	if _, err := strconv.ParseInt(alert.Obligation.NotifyTo, 10, 64); err == nil {
		return alert.Obligation.NotifyTo
	}
	return strconv.FormatInt(d.defaultChatID, 10)
}

func alertMarkup(obligationID string) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{{
		{Text: "Renewed", Data: callbackRenew + obligationID},
		{Text: "Cancel obligation", Data: callbackCancel + obligationID},
	}}}
}

// Send posts the alert to the recipient chat. telebot.v3 takes no context, so
// when ctx ends first Send returns while the request is still in flight,
// bounded only by the bot's HTTP client timeout. The message may then arrive
// even though the receipt is recorded as an error; the rule stays fired, so it
// is never sent twice.
func (d *Dispatcher) Send(ctx context.Context, alert dispatch.DueAlert, receiptID string) error {
	chatID, err := strconv.ParseInt(d.Recipient(alert), 10, 64)
	if err != nil || chatID == 0 {
		return fmt.Errorf("no telegram chat for obligation %s", alert.Obligation.ID)
	}

	opts := &telebot.SendOptions{ReplyMarkup: alertMarkup(alert.Obligation.ID), DisableWebPagePreview: true}
	done := make(chan error, 1)
	go func() { done <- d.client.SendMessage(chatID, dispatch.Body(alert), opts) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("telegram request still in flight, delivery unknown: %w", ctx.Err())
	}
}
