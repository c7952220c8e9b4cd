package telegram

import (
	"context"
	"time"

	"property_due_alerts/internal/app"
	"property_due_alerts/internal/domain/obligation"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAlertResponseHandlers handles the inline buttons attached to alert
// messages by Dispatcher.
func RegisterAlertResponseHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, location *time.Location, baseLogger *logrus.Entry) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "callback",
			"sender_id": c.Sender().ID,
			"data":      data,
		})

		action, id, err := parseCallback(data)
		if err != nil {
			log.WithError(err).Warn("Unknown callback")
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
		}

		switch action {
		case "renew":
			res, err := adminService.RenewObligation(ctx, c.Sender().ID, id, obligation.DateOf(time.Now().In(location)))
			if err != nil {
				log.WithError(err).Warn("Renew from callback failed")
				return c.Respond(&telebot.CallbackResponse{Text: userMessage(err), ShowAlert: true})
			}
			log.WithField("obligation_id", id).Info("Obligation renewed from alert")
			_ = c.Respond(&telebot.CallbackResponse{Text: "Renewed"})
			return c.Send(formatRenewal(res))
		default:
			o, err := adminService.CancelObligation(ctx, c.Sender().ID, id)
			if err != nil {
				log.WithError(err).Warn("Cancel from callback failed")
				return c.Respond(&telebot.CallbackResponse{Text: userMessage(err), ShowAlert: true})
			}
			log.WithField("obligation_id", id).Info("Obligation cancelled from alert")
			_ = c.Respond(&telebot.CallbackResponse{Text: "Cancelled"})
			return c.Send("Obligation cancelled:\n" + formatObligation(o, obligation.DateOf(time.Now().In(location))))
		}
	})
}
