package telegram

import (
	"gopkg.in/telebot.v3"
)

// Client is the slice of the Telegram API the alert dispatcher needs.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to a user, group or channel chat.
func (tba *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	_, err := tba.bot.Send(telebot.ChatID(chatID), text, options)
	return err
}
