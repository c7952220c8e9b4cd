// internal/app/alert_service.go
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

const (
	defaultDispatchTimeout     = 30 * time.Second
	defaultDispatchConcurrency = 4
	defaultDispatchRatePerSec  = 5
)

// DispatchOptions bound the fan-out of a single cycle.
type DispatchOptions struct {
	Timeout     time.Duration // per Send call; a timeout is recorded as outcome=error
	Concurrency int
	RatePerSec  int
}

// AlertFailure is one claimed alert whose dispatch failed.
type AlertFailure struct {
	ObligationID string
	RuleID       string
	ReceiptID    string
	Err          error
}

// CycleReport summarises one scan-and-dispatch run.
type CycleReport struct {
	AsOf          time.Time
	Due           int
	Claimed       int
	Skipped       int // claim lost to a concurrent run
	Deferred      int // not attempted because the cycle was cancelled
	Sent          int
	Failed        int
	MarkedOverdue int64
	Failures      []AlertFailure
	Duration      time.Duration
}

func (r *CycleReport) logFields() logrus.Fields {
	return logrus.Fields{
		"as_of":          r.AsOf.Format(obligation.DateLayout),
		"due":            r.Due,
		"claimed":        r.Claimed,
		"skipped":        r.Skipped,
		"deferred":       r.Deferred,
		"sent":           r.Sent,
		"failed":         r.Failed,
		"marked_overdue": r.MarkedOverdue,
		"took":           r.Duration.String(),
	}
}

// AlertService runs the scan -> claim -> send -> record -> overdue pipeline.
// RunScanAndDispatchCycle is the single entry point for scheduler drivers.
type AlertService struct {
	scanner    *AlertScanner
	tracker    *DispatchTracker
	lifecycle  *ObligationLifecycle
	dispatcher dispatch.Dispatcher
	opts       DispatchOptions
	limiter    *rate.Limiter
	logger     *logrus.Entry
}

func NewAlertService(
	scanner *AlertScanner,
	tracker *DispatchTracker,
	lifecycle *ObligationLifecycle,
	dispatcher dispatch.Dispatcher,
	opts DispatchOptions,
	logger *logrus.Entry,
) *AlertService {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDispatchTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultDispatchConcurrency
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultDispatchRatePerSec
	}
	return &AlertService{
		scanner:    scanner,
		tracker:    tracker,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		opts:       opts,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		logger:     logger.WithField("component", "alert_service"),
	}
}

// PreviewDueAlerts is a read-only scan, used by the bot and the CLI.
func (s *AlertService) PreviewDueAlerts(ctx context.Context, asOf time.Time) ([]dispatch.DueAlert, error) {
	return s.scanner.ScanDueAlerts(ctx, asOf)
}

// RunScanAndDispatchCycle scans the alerts due on asOf, dispatches each one at
// most once and then moves obligations past their due date to overdue.
//
// A store failure during the scan aborts the cycle before anything is claimed.
// A store failure while claiming or recording stops further claims, leaves the
// remaining alerts for the next run and skips the overdue pass. Dispatch
// failures never stop the other alerts. Every failure is joined into the
// returned error; the report is always returned.
func (s *AlertService) RunScanAndDispatchCycle(ctx context.Context, asOf time.Time) (*CycleReport, error) {
	start := time.Now()
	report := &CycleReport{AsOf: obligation.DateOf(asOf)}
	log := s.logger.WithField("as_of", report.AsOf.Format(obligation.DateLayout))

	alerts, err := s.scanner.ScanDueAlerts(ctx, asOf)
	if err != nil {
		report.Duration = time.Since(start)
		log.WithError(err).Error("Scan failed, cycle aborted")
		return report, err
	}
	report.Due = len(alerts)
	log.WithField("due", len(alerts)).Info("Scan complete, dispatching")

	runCtx, abort := context.WithCancel(ctx)
	defer abort()
	run := &cycleRun{ctx: ctx, abort: abort, report: report}

	p := pool.New().WithContext(runCtx).WithMaxGoroutines(s.opts.Concurrency)
	for _, alert := range alerts {
		p.Go(func(poolCtx context.Context) error {
			return s.processAlert(poolCtx, run, alert)
		})
	}
	errs := []error{p.Wait()}

	switch {
	case ctx.Err() != nil:
		errs = append(errs, ctx.Err())
	case run.storeFailed.Load():
		log.Error("Store failed during dispatch, overdue pass skipped")
	default:
		n, err := s.lifecycle.MarkOverdue(ctx, asOf)
		if err != nil {
			errs = append(errs, err)
		}
		report.MarkedOverdue = n
	}

	report.Duration = time.Since(start)
	cycleErr := errors.Join(errs...)
	if cycleErr != nil {
		log.WithFields(report.logFields()).WithError(cycleErr).Warn("Cycle finished with errors")
	} else {
		log.WithFields(report.logFields()).Info("Cycle finished")
	}
	return report, cycleErr
}

// cycleRun is the state shared by the alerts of one cycle.
type cycleRun struct {
	ctx         context.Context // the caller's context, never aborted by a store failure
	abort       context.CancelFunc
	storeFailed atomic.Bool

	mu     sync.Mutex
	report *CycleReport
}

func (r *cycleRun) tally(f func()) {
	r.mu.Lock()
	f()
	r.mu.Unlock()
}

// storeFailure stops further claims when err comes from the store.
func (r *cycleRun) storeFailure(err error) {
	if ierr.Is(err, ierr.ErrStoreUnavailable) {
		r.storeFailed.Store(true)
		r.abort()
	}
}

// processAlert claims, sends and records one alert. ctx is aborted on a store
// failure; sends of already claimed alerts run on the caller's context.
func (s *AlertService) processAlert(ctx context.Context, run *cycleRun, alert dispatch.DueAlert) error {
	log := s.logger.WithFields(logrus.Fields{
		"obligation_id": alert.Obligation.ID,
		"rule_id":       alert.Rule.ID,
		"lead_time":     alert.Rule.LeadTime,
	})
	report := run.report
	tally := run.tally

	// Unclaimed alerts are simply picked up by the next run.
	if ctx.Err() != nil {
		tally(func() { report.Deferred++ })
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		tally(func() { report.Deferred++ })
		return nil
	}

	recipient := s.dispatcher.Recipient(alert)
	receipt, claimed, err := s.tracker.TryClaim(ctx, ClaimRequest{
		Alert:     alert,
		Channel:   s.dispatcher.Channel(),
		Recipient: recipient,
	})
	if err != nil {
		if ctx.Err() != nil {
			tally(func() { report.Deferred++ })
			return nil
		}
		run.storeFailure(err)
		log.WithError(err).Error("Claim failed")
		return err
	}
	if !claimed {
		tally(func() { report.Skipped++ })
		log.Info("Alert already claimed by another run, skipping")
		return nil
	}
	tally(func() { report.Claimed++ })
	log = log.WithFields(logrus.Fields{"receipt_id": receipt.ID, "channel": receipt.Channel})

	sendCtx, cancel := context.WithTimeout(run.ctx, s.opts.Timeout)
	sendErr := s.dispatcher.Send(sendCtx, alert, receipt.ID)
	cancel()

	outcome, detail := dispatch.OutcomeSent, ""
	if sendErr != nil {
		outcome, detail = dispatch.OutcomeError, sendErr.Error()
		if errors.Is(sendErr, context.DeadlineExceeded) {
			detail = "dispatch timed out after " + s.opts.Timeout.String() + ", delivery unknown"
		}
	}

	// The outcome is written even if the cycle was cancelled mid-send.
	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(run.ctx), s.opts.Timeout)
	defer cancelRecord()
	if err := s.tracker.RecordOutcome(recordCtx, receipt.ID, outcome, detail); err != nil {
		run.storeFailure(err)
		return err
	}

	if sendErr != nil {
		tally(func() {
			report.Failed++
			report.Failures = append(report.Failures, AlertFailure{
				ObligationID: alert.Obligation.ID,
				RuleID:       alert.Rule.ID,
				ReceiptID:    receipt.ID,
				Err:          sendErr,
			})
		})
		log.WithError(sendErr).Warn("Dispatch failed; the alert will not be retried automatically")
		return ierr.WithError(sendErr).
			WithMessagef("dispatch alert %s", alert.Key()).
			Mark(ierr.ErrDispatchFailed)
	}

	tally(func() { report.Sent++ })
	log.WithField("recipient", recipient).Info("Alert dispatched")
	return nil
}
