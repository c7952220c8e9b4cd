package notify

import (
	"context"
	"testing"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/infra/config"
	"property_due_alerts/internal/infra/telegram"
	"property_due_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

type nopTelegram struct{}

func (nopTelegram) SendMessage(int64, string, *telebot.SendOptions) error { return nil }

func TestNew_SelectsChannel(t *testing.T) {
	log := testutil.Logger()
	tests := []struct {
		cfg  config.AppConfig
		tg   bool
		want dispatch.Channel
	}{
		{config.AppConfig{AlertChannel: config.ChannelLog}, false, dispatch.ChannelLog},
		{config.AppConfig{AlertChannel: config.ChannelTelegram, AdminTelegramID: 7}, true, dispatch.ChannelTelegram},
		{config.AppConfig{AlertChannel: config.ChannelEmail, ResendAPIKey: "re_test", EmailFrom: "a@example.com"}, false, dispatch.ChannelEmail},
		{config.AppConfig{AlertChannel: config.ChannelWebhook, WebhookURL: "http://localhost:9/hook"}, false, dispatch.ChannelWebhook},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			var tg telegram.Client
			if tt.tg {
				tg = nopTelegram{}
			}
			cfg := tt.cfg
			d, err := New(&cfg, tg, log)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Channel())
		})
	}
}

func TestNew_Errors(t *testing.T) {
	log := testutil.Logger()
	_, err := New(&config.AppConfig{AlertChannel: config.ChannelTelegram}, nil, log)
	assert.Error(t, err)
	_, err = New(&config.AppConfig{AlertChannel: config.ChannelEmail}, nil, log)
	assert.Error(t, err)
	_, err = New(&config.AppConfig{AlertChannel: "sms"}, nil, log)
	assert.Error(t, err)
}

func TestLogDispatcher(t *testing.T) {
	d := NewLogDispatcher(testutil.Logger())
	o := testutil.NewObligation("Boiler", testutil.Date("2024-03-01"), obligation.RecurrenceNone, obligation.LeadTimeOnDueDate)
	alert := dispatch.DueAlert{Obligation: o.WithoutRules(), Rule: o.Rules[0], FireDate: o.DueDate}

	assert.Equal(t, "log", d.Recipient(alert))
	assert.NoError(t, d.Send(context.Background(), alert, "rcpt_1"))
}
