package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func adminHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Admin commands:\n\n")
	helpText.WriteString("`/add_obligation <kind> <YYYY-MM-DD> <recurrence> <title>`\n - Track a new contract, service or maintenance obligation.\n\n")
	helpText.WriteString("`/obligations [active|overdue|renewed|cancelled|all]`\n - List obligations. Active and overdue by default.\n\n")
	helpText.WriteString("`/renew <id>`\n - Mark as fulfilled; recurring obligations open their next cycle.\n\n")
	helpText.WriteString("`/cancel <id>`\n - Stop tracking an obligation.\n\n")
	helpText.WriteString("`/delete <id>`\n - Remove an obligation; dispatch history is kept.\n\n")
	helpText.WriteString("`/due [YYYY-MM-DD]`\n - Preview the alerts due on a day without sending them.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithFields(logrus.Fields{"command": "/start", "sender_id": senderID})
		logCtx.Info("Processing /start command")

		if adminTelegramID != 0 && senderID == adminTelegramID {
			return c.Send(fmt.Sprintf("Hello, %s! I track property contracts, services and maintenance and remind you before they fall due. Use /help for the command list.", c.Sender().FirstName))
		}
		logCtx.Info("User is not the admin")
		return c.Send("Hello! This bot sends due-date reminders for a managed property. Ask the administrator for access.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithFields(logrus.Fields{"command": "/help", "sender_id": senderID})
		logCtx.Info("Processing /help command")

		if adminTelegramID != 0 && senderID == adminTelegramID {
			return c.Send(adminHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		return c.Send("No commands are available to you. Ask the administrator for access.")
	})
}
