package scheduler

import (
	"context"
	"sync"
	"time"

	"property_due_alerts/internal/app"
	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultJobTimeout = 10 * time.Minute

// CycleRunner is the part of app.AlertService the scheduler drives.
type CycleRunner interface {
	RunScanAndDispatchCycle(ctx context.Context, asOf time.Time) (*app.CycleReport, error)
}

type AlertScheduler struct {
	cronEngine *cron.Cron
	runner     CycleRunner
	logger     *logrus.Entry
	cronSpec   string
	location   *time.Location
	jobTimeout time.Duration
	now        func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAlertScheduler(runner CycleRunner, logger *logrus.Entry, cronSpec string, location *time.Location) *AlertScheduler {
	if location == nil {
		location = time.Local
	}
	log := logger.WithField("component", "alert_scheduler")
	return &AlertScheduler{
		cronEngine: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
		runner:     runner,
		logger:     log,
		cronSpec:   cronSpec,
		location:   location,
		jobTimeout: defaultJobTimeout,
		now:        time.Now,
	}
}

// Start registers the daily cycle and starts the cron engine. Jobs derive their
// context from ctx, so cancelling it aborts a running cycle.
func (s *AlertScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if _, err := s.cronEngine.AddFunc(s.cronSpec, func() { s.RunOnce() }); err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"cron_spec": s.cronSpec,
		"timezone":  s.location.String(),
	}).Info("Alert scheduler started")
	return nil
}

// RunOnce runs one cycle for today's calendar date in the scheduler's time zone.
func (s *AlertScheduler) RunOnce() (*app.CycleReport, error) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.jobTimeout)
	defer cancel()

	asOf := obligation.DateOf(s.now().In(s.location))
	log := s.logger.WithField("as_of", asOf.Format(obligation.DateLayout))
	log.Info("Cron job triggered for alert cycle")

	report, err := s.runner.RunScanAndDispatchCycle(ctx, asOf)
	metrics.RecordCycle(report, err)
	if err != nil {
		log.WithError(err).Error("Alert cycle finished with errors")
	}
	return report, err
}

// Stop stops the cron engine, cancels a running cycle and waits for it.
func (s *AlertScheduler) Stop() {
	s.logger.Info("Stopping alert scheduler...")
	ctx := s.cronEngine.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-ctx.Done()
	s.logger.Info("Alert scheduler gracefully stopped")
}
