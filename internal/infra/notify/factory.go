package notify

import (
	"fmt"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/infra/config"
	"property_due_alerts/internal/infra/email"
	"property_due_alerts/internal/infra/telegram"
	"property_due_alerts/internal/infra/webhook"

	"github.com/sirupsen/logrus"
)

// New builds the dispatcher for cfg.AlertChannel. tg may be nil unless the
// telegram channel is selected.
func New(cfg *config.AppConfig, tg telegram.Client, logger *logrus.Entry) (dispatch.Dispatcher, error) {
	switch cfg.AlertChannel {
	case config.ChannelLog, "":
		return NewLogDispatcher(logger), nil
	case config.ChannelTelegram:
		if tg == nil {
			return nil, fmt.Errorf("telegram channel selected but the bot is not configured")
		}
		chatID := cfg.AlertTelegramChatID
		if chatID == 0 {
			chatID = cfg.AdminTelegramID
		}
		return telegram.NewDispatcher(tg, chatID), nil
	case config.ChannelEmail:
		return email.NewDispatcher(email.Config{
			APIKey:      cfg.ResendAPIKey,
			FromAddress: cfg.EmailFrom,
			DefaultTo:   cfg.EmailTo,
		})
	case config.ChannelWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook channel selected but WEBHOOK_URL is empty")
		}
		return webhook.NewDispatcher(cfg.WebhookURL, cfg.WebhookRetryMax, logger), nil
	default:
		return nil, fmt.Errorf("unknown alert channel %q", cfg.AlertChannel)
	}
}
