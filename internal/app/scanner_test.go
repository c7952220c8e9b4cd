package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"
	"property_due_alerts/internal/testutil"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type AlertScannerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *testutil.InMemoryStore
	scanner *AlertScanner
}

func TestAlertScanner(t *testing.T) {
	suite.Run(t, new(AlertScannerSuite))
}

func (s *AlertScannerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testutil.NewInMemoryStore()
	s.scanner = NewAlertScanner(s.store, testutil.Logger())
}

func (s *AlertScannerSuite) create(o *obligation.Obligation) *obligation.Obligation {
	s.Require().NoError(s.store.Create(s.ctx, o))
	return o
}

func (s *AlertScannerSuite) TestOnlyFireDatesOnOrBeforeAsOf() {
	o := s.create(testutil.NewObligation("Elevator service", testutil.Date("2024-03-01"), obligation.RecurrenceNone,
		obligation.LeadTimeOnDueDate, obligation.LeadTime15DaysBefore))

	alerts, err := s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-02-15"))
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(testutil.RuleFor(o, obligation.LeadTime15DaysBefore).ID, alerts[0].Rule.ID)
	s.Equal(testutil.Date("2024-02-15"), alerts[0].FireDate)
	s.Empty(alerts[0].Obligation.Rules)

	alerts, err = s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-02-14"))
	s.Require().NoError(err)
	s.Empty(alerts)
}

func (s *AlertScannerSuite) TestFiredRulesAreExcluded() {
	o := s.create(testutil.NewObligation("Elevator service", testutil.Date("2024-03-01"), obligation.RecurrenceNone,
		obligation.LeadTimeOnDueDate, obligation.LeadTime15DaysBefore))
	early := testutil.RuleFor(o, obligation.LeadTime15DaysBefore)

	claimed, err := s.store.ClaimRule(s.ctx, claimFor(early, "rcpt_1"))
	s.Require().NoError(err)
	s.Require().True(claimed)

	alerts, err := s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-03-01"))
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(obligation.LeadTimeOnDueDate, alerts[0].Rule.LeadTime)

	// Later days never bring the fired rule back.
	alerts, err = s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-06-01"))
	s.Require().NoError(err)
	s.False(lo.ContainsBy(alerts, func(a dispatch.DueAlert) bool { return a.Rule.ID == early.ID }))
}

func (s *AlertScannerSuite) TestScanIsIdempotent() {
	s.create(testutil.NewObligation("Boiler", testutil.Date("2024-03-01"), obligation.RecurrenceNone,
		obligation.LeadTimeOnDueDate, obligation.LeadTimeOneWeekBefore, obligation.LeadTime15DaysBefore))
	s.create(testutil.NewObligation("Insurance", testutil.Date("2024-02-20"), obligation.RecurrenceAnnual,
		obligation.LeadTimeOneMonthBefore, obligation.LeadTimeOneDayBefore))

	asOf := testutil.Date("2024-02-25")
	first, err := s.scanner.ScanDueAlerts(s.ctx, asOf)
	s.Require().NoError(err)
	second, err := s.scanner.ScanDueAlerts(s.ctx, asOf)
	s.Require().NoError(err)

	s.Len(first, 4)
	s.Equal(first, second)
	s.Len(lo.UniqBy(first, func(a dispatch.DueAlert) string { return a.Rule.ID }), len(first))
}

func (s *AlertScannerSuite) TestSkipsDisabledRulesAndInactiveObligations() {
	disabled := testutil.NewObligation("Disabled rule", testutil.Date("2024-03-01"), obligation.RecurrenceNone, obligation.LeadTimeOnDueDate)
	disabled.Rules[0].Enabled = false
	s.create(disabled)

	cancelled := testutil.NewObligation("Cancelled", testutil.Date("2024-03-01"), obligation.RecurrenceNone, obligation.LeadTimeOnDueDate)
	cancelled.Status = obligation.StatusCancelled
	s.create(cancelled)

	overdue := testutil.NewObligation("Overdue", testutil.Date("2024-02-01"), obligation.RecurrenceNone, obligation.LeadTimeOnDueDate)
	overdue.Status = obligation.StatusOverdue
	s.create(overdue)

	alerts, err := s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-03-01"))
	s.Require().NoError(err)
	s.Empty(alerts)
}

func (s *AlertScannerSuite) TestStoreUnavailableYieldsNoAlerts() {
	s.create(testutil.NewObligation("Boiler", testutil.Date("2024-03-01"), obligation.RecurrenceNone, obligation.LeadTimeOnDueDate))
	s.store.FailWith = errors.New("connection refused")

	alerts, err := s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-03-01"))
	s.Nil(alerts)
	s.True(ierr.Is(err, ierr.ErrStoreUnavailable))
}

func (s *AlertScannerSuite) TestMissingDueDateFailsFast() {
	broken := testutil.NewObligation("Broken", testutil.Date("2024-03-01"), obligation.RecurrenceNone, obligation.LeadTimeOnDueDate)
	broken.DueDate = time.Time{}
	s.create(broken)

	alerts, err := s.scanner.ScanDueAlerts(s.ctx, testutil.Date("2024-03-01"))
	s.Nil(alerts)
	s.True(ierr.Is(err, ierr.ErrInvalidObligation))
}
