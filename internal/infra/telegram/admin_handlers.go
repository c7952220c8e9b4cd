package telegram

import (
	"context"
	"time"

	"property_due_alerts/internal/app"
	"property_due_alerts/internal/domain/obligation"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers registers the obligation management commands.
// AdminService checks the sender on every call.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, location *time.Location, baseLogger *logrus.Entry) {
	handle := func(command string, fn func(c telebot.Context, log *logrus.Entry) error) {
		b.Handle(command, func(c telebot.Context) error {
			log := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			log.Info("Command received")
			return fn(c, log)
		})
	}
	fail := func(c telebot.Context, log *logrus.Entry, err error) error {
		if err == app.ErrAdminNotAuthorized {
			log.Warn("Unauthorized access attempt")
		} else {
			log.WithError(err).Error("Command failed")
		}
		return c.Send(userMessage(err))
	}
	today := func() time.Time { return obligation.DateOf(time.Now().In(location)) }

	handle("/add_obligation", func(c telebot.Context, log *logrus.Entry) error {
		kind, recurrence, dueArg, title, err := parseAddObligation(c.Args())
		if err != nil {
			log.WithError(err).Warn("Invalid command format")
			return c.Send(userMessage(err))
		}
		due, err := obligation.ParseDate(dueArg)
		if err != nil {
			return c.Send(userMessage(err))
		}

		o, err := adminService.AddObligation(ctx, c.Sender().ID, kind, due, recurrence, title)
		if err != nil {
			return fail(c, log, err)
		}
		log.WithField("obligation_id", o.ID).Info("Obligation added")
		return c.Send("Obligation added:\n" + formatObligation(o, today()))
	})

	handle("/obligations", func(c telebot.Context, log *logrus.Entry) error {
		statuses, err := parseStatusFilter(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		list, err := adminService.ListObligations(ctx, c.Sender().ID, statuses)
		if err != nil {
			return fail(c, log, err)
		}
		return c.Send(formatObligations(list, today()))
	})

	handle("/renew", func(c telebot.Context, log *logrus.Entry) error {
		if len(c.Args()) != 1 {
			return c.Send("Usage: /renew <obligation id>")
		}
		res, err := adminService.RenewObligation(ctx, c.Sender().ID, c.Args()[0], today())
		if err != nil {
			return fail(c, log, err)
		}
		return c.Send(formatRenewal(res))
	})

	handle("/cancel", func(c telebot.Context, log *logrus.Entry) error {
		if len(c.Args()) != 1 {
			return c.Send("Usage: /cancel <obligation id>")
		}
		o, err := adminService.CancelObligation(ctx, c.Sender().ID, c.Args()[0])
		if err != nil {
			return fail(c, log, err)
		}
		return c.Send("Obligation cancelled:\n" + formatObligation(o, today()))
	})

	handle("/delete", func(c telebot.Context, log *logrus.Entry) error {
		if len(c.Args()) != 1 {
			return c.Send("Usage: /delete <obligation id>")
		}
		if err := adminService.DeleteObligation(ctx, c.Sender().ID, c.Args()[0]); err != nil {
			return fail(c, log, err)
		}
		return c.Send("Obligation deleted. Its dispatch history is kept.")
	})

	handle("/due", func(c telebot.Context, log *logrus.Entry) error {
		asOf := today()
		if len(c.Args()) > 0 {
			d, err := obligation.ParseDate(c.Args()[0])
			if err != nil {
				return c.Send(userMessage(err))
			}
			asOf = d
		}
		alerts, err := adminService.PreviewDue(ctx, c.Sender().ID, asOf)
		if err != nil {
			return fail(c, log, err)
		}
		return c.Send(formatDueAlerts(asOf.Format(obligation.DateLayout), alerts))
	})
}
