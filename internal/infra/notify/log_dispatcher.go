package notify

import (
	"context"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"

	"github.com/sirupsen/logrus"
)

// LogDispatcher "delivers" alerts to the structured log. It is the default
// channel and never fails.
type LogDispatcher struct {
	logger *logrus.Entry
}

func NewLogDispatcher(logger *logrus.Entry) *LogDispatcher {
	return &LogDispatcher{logger: logger.WithField("component", "log_dispatcher")}
}

func (d *LogDispatcher) Channel() dispatch.Channel { return dispatch.ChannelLog }

func (d *LogDispatcher) Recipient(alert dispatch.DueAlert) string {
	if alert.Obligation.NotifyTo != "" {
		return alert.Obligation.NotifyTo
	}
	return "log"
}

func (d *LogDispatcher) Send(ctx context.Context, alert dispatch.DueAlert, receiptID string) error {
	d.logger.WithFields(logrus.Fields{
		"receipt_id":    receiptID,
		"obligation_id": alert.Obligation.ID,
		"rule_id":       alert.Rule.ID,
		"lead_time":     alert.Rule.LeadTime,
		"due_date":      alert.Obligation.DueDate.Format(obligation.DateLayout),
		"recipient":     d.Recipient(alert),
	}).Info(dispatch.Subject(alert))
	return nil
}
