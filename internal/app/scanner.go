// internal/app/scanner.go
package app

import (
	"context"
	"sort"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// AlertScanner projects the store onto the list of alerts due on a given day.
// It never writes.
type AlertScanner struct {
	obligations obligation.Repository
	logger      *logrus.Entry
}

func NewAlertScanner(obligations obligation.Repository, logger *logrus.Entry) *AlertScanner {
	return &AlertScanner{
		obligations: obligations,
		logger:      logger.WithField("component", "alert_scanner"),
	}
}

// ScanDueAlerts returns every enabled, unfired rule of an active obligation
// whose fire date is on or before asOf. Either the whole scan succeeds or no
// alert is returned.
func (s *AlertScanner) ScanDueAlerts(ctx context.Context, asOf time.Time) ([]dispatch.DueAlert, error) {
	day := obligation.DateOf(asOf)
	log := s.logger.WithField("as_of", day.Format(obligation.DateLayout))

	active, err := s.obligations.ListActiveWithRules(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list active obligations")
		if ierr.Is(err, ierr.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, ierr.WithError(err).WithMessage("scan due alerts").Mark(ierr.ErrStoreUnavailable)
	}

	alerts := make([]dispatch.DueAlert, 0)
	for _, o := range active {
		for _, rule := range o.PendingRules() {
			fireDate, err := obligation.ComputeFireDate(o, rule.LeadTime)
			if err != nil {
				log.WithError(err).WithField("obligation_id", o.ID).Error("Cannot compute fire date")
				return nil, err
			}
			if fireDate.After(day) {
				continue
			}
			alerts = append(alerts, dispatch.DueAlert{
				Obligation: o.WithoutRules(),
				Rule:       rule,
				FireDate:   fireDate,
			})
		}
	}

	alerts = lo.UniqBy(alerts, func(a dispatch.DueAlert) string { return a.Rule.ID })
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if !a.FireDate.Equal(b.FireDate) {
			return a.FireDate.Before(b.FireDate)
		}
		if a.Obligation.ID != b.Obligation.ID {
			return a.Obligation.ID < b.Obligation.ID
		}
		return a.Rule.LeadTime.DaysBefore() > b.Rule.LeadTime.DaysBefore()
	})

	log.WithFields(logrus.Fields{
		"active_obligations": len(active),
		"due_alerts":         len(alerts),
	}).Debug("Scan complete")
	return alerts, nil
}
