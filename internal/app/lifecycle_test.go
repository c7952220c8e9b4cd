package app

import (
	"context"
	"testing"

	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"
	"property_due_alerts/internal/testutil"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ObligationLifecycleSuite struct {
	suite.Suite
	ctx       context.Context
	store     *testutil.InMemoryStore
	lifecycle *ObligationLifecycle
}

func TestObligationLifecycle(t *testing.T) {
	suite.Run(t, new(ObligationLifecycleSuite))
}

func (s *ObligationLifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testutil.NewInMemoryStore()
	s.lifecycle = NewObligationLifecycle(s.store,
		[]obligation.LeadTime{obligation.LeadTimeOnDueDate, obligation.LeadTimeOneWeekBefore},
		testutil.Logger())
}

func (s *ObligationLifecycleSuite) input(due string, r obligation.Recurrence) CreateObligationInput {
	return CreateObligationInput{
		OwnerID:    "owner_1",
		Kind:       obligation.KindService,
		Title:      "  Cleaning contract ",
		DueDate:    testutil.Date(due),
		Recurrence: r,
	}
}

func (s *ObligationLifecycleSuite) TestCreateUsesDefaultLeadTimes() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceMonthly))
	s.Require().NoError(err)

	s.Equal(obligation.StatusActive, o.Status)
	s.Equal("Cleaning contract", o.Title)
	s.Len(o.Rules, 2)
	for _, r := range o.Rules {
		s.True(r.Enabled)
		s.False(r.Fired)
		s.Equal(o.ID, r.ObligationID)
	}

	stored, err := s.lifecycle.Get(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.DueDate, stored.DueDate)
}

func (s *ObligationLifecycleSuite) TestCreateDeduplicatesLeadTimes() {
	in := s.input("2024-01-15", obligation.RecurrenceNone)
	in.LeadTimes = []obligation.LeadTime{obligation.LeadTimeOneDayBefore}
	amount := decimal.RequireFromString("1250.50")
	in.Amount = &amount

	o, err := s.lifecycle.Create(s.ctx, in)
	s.Require().NoError(err)
	s.Len(o.Rules, 1)
	s.Equal(obligation.LeadTimeOneDayBefore, o.Rules[0].LeadTime)
	s.True(o.Amount.Valid)
	s.Equal("1250.5", o.Amount.Decimal.String())
}

func (s *ObligationLifecycleSuite) TestCreateValidation() {
	tests := []struct {
		name   string
		mutate func(*CreateObligationInput)
		kind   error
	}{
		{"missing title", func(in *CreateObligationInput) { in.Title = "" }, ierr.ErrValidation},
		{"unknown kind", func(in *CreateObligationInput) { in.Kind = "lease" }, ierr.ErrValidation},
		{"unknown recurrence", func(in *CreateObligationInput) { in.Recurrence = "weekly" }, ierr.ErrValidation},
		{"unknown lead time", func(in *CreateObligationInput) {
			in.LeadTimes = []obligation.LeadTime{"2-days-before"}
		}, ierr.ErrValidation},
		{"duplicate lead time", func(in *CreateObligationInput) {
			in.LeadTimes = []obligation.LeadTime{obligation.LeadTimeOnDueDate, obligation.LeadTimeOnDueDate}
		}, ierr.ErrValidation},
		{"negative amount", func(in *CreateObligationInput) {
			a := decimal.NewFromInt(-1)
			in.Amount = &a
		}, ierr.ErrValidation},
		{"start after due", func(in *CreateObligationInput) {
			d := testutil.Date("2024-02-01")
			in.StartDate = &d
		}, ierr.ErrValidation},
		{"missing due date", func(in *CreateObligationInput) { in.DueDate = testutil.Date("0001-01-01") }, ierr.ErrInvalidObligation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			in := s.input("2024-01-15", obligation.RecurrenceNone)
			tt.mutate(&in)
			_, err := s.lifecycle.Create(s.ctx, in)
			s.True(ierr.Is(err, tt.kind), "got %v", err)
		})
	}
}

func (s *ObligationLifecycleSuite) TestRenewMonthly() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceMonthly))
	s.Require().NoError(err)
	claimed, err := s.store.ClaimRule(s.ctx, claimFor(o.Rules[0], "rcpt_1"))
	s.Require().NoError(err)
	s.Require().True(claimed)

	res, err := s.lifecycle.Renew(s.ctx, o.ID, testutil.Date("2024-01-14"))
	s.Require().NoError(err)

	s.Equal(obligation.StatusRenewed, res.Renewed.Status)
	s.Equal(testutil.Date("2024-01-14"), *res.Renewed.LastFulfilledDate)
	s.Require().NotNil(res.Next)
	s.Equal(testutil.Date("2024-02-15"), res.Next.DueDate)
	s.Equal(testutil.Date("2024-02-15"), *res.Renewed.NextCycleDate)
	s.Equal(obligation.StatusActive, res.Next.Status)
	s.Equal(o.ID, res.Next.RenewedFromID)
	s.Equal(testutil.Date("2024-01-15"), *res.Next.StartDate)

	s.Len(res.Next.Rules, len(o.Rules))
	oldIDs := lo.Map(o.Rules, func(r obligation.AlertRule, _ int) string { return r.ID })
	for _, r := range res.Next.Rules {
		s.False(r.Fired)
		s.Nil(r.FiredAt)
		s.NotContains(oldIDs, r.ID)
	}

	stored, err := s.store.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(obligation.StatusRenewed, stored.Status)
	storedNext, err := s.store.GetByID(s.ctx, res.Next.ID)
	s.Require().NoError(err)
	s.Equal(testutil.Date("2024-02-15"), storedNext.DueDate)
}

func (s *ObligationLifecycleSuite) TestRenewClampsMonthEnd() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-31", obligation.RecurrenceMonthly))
	s.Require().NoError(err)
	res, err := s.lifecycle.Renew(s.ctx, o.ID, testutil.Date("2024-01-31"))
	s.Require().NoError(err)
	s.Equal(testutil.Date("2024-02-29"), res.Next.DueDate)
}

func (s *ObligationLifecycleSuite) TestRenewOneOffHasNoNextCycle() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceNone))
	s.Require().NoError(err)
	res, err := s.lifecycle.Renew(s.ctx, o.ID, testutil.Date("2024-01-20"))
	s.Require().NoError(err)
	s.Nil(res.Next)
	s.Nil(res.Renewed.NextCycleDate)
}

func (s *ObligationLifecycleSuite) TestRenewOverdue() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceQuarterly))
	s.Require().NoError(err)
	n, err := s.lifecycle.MarkOverdue(s.ctx, testutil.Date("2024-01-16"))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	res, err := s.lifecycle.Renew(s.ctx, o.ID, testutil.Date("2024-01-20"))
	s.Require().NoError(err)
	s.Equal(testutil.Date("2024-04-15"), res.Next.DueDate)
}

func (s *ObligationLifecycleSuite) TestTerminalStatesRejectTransitions() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceMonthly))
	s.Require().NoError(err)
	_, err = s.lifecycle.Cancel(s.ctx, o.ID)
	s.Require().NoError(err)

	_, err = s.lifecycle.Renew(s.ctx, o.ID, testutil.Date("2024-01-15"))
	s.True(ierr.Is(err, ierr.ErrInvalidTransition))
	_, err = s.lifecycle.Cancel(s.ctx, o.ID)
	s.True(ierr.Is(err, ierr.ErrInvalidTransition))
	s.NotEmpty(ierr.GetHint(err))
}

func (s *ObligationLifecycleSuite) TestMarkOverdueOnlyTouchesPastDueActive() {
	past, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceNone))
	s.Require().NoError(err)
	today, err := s.lifecycle.Create(s.ctx, s.input("2024-01-16", obligation.RecurrenceNone))
	s.Require().NoError(err)

	n, err := s.lifecycle.MarkOverdue(s.ctx, testutil.Date("2024-01-16"))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got, _ := s.lifecycle.Get(s.ctx, past.ID)
	s.Equal(obligation.StatusOverdue, got.Status)
	got, _ = s.lifecycle.Get(s.ctx, today.ID)
	s.Equal(obligation.StatusActive, got.Status)

	n, err = s.lifecycle.MarkOverdue(s.ctx, testutil.Date("2024-01-16"))
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ObligationLifecycleSuite) TestDeleteKeepsReceipts() {
	o, err := s.lifecycle.Create(s.ctx, s.input("2024-01-15", obligation.RecurrenceNone))
	s.Require().NoError(err)
	_, err = s.store.ClaimRule(s.ctx, claimFor(o.Rules[0], "rcpt_kept"))
	s.Require().NoError(err)

	s.Require().NoError(s.lifecycle.Delete(s.ctx, o.ID))

	_, err = s.lifecycle.Get(s.ctx, o.ID)
	s.True(ierr.Is(err, ierr.ErrNotFound))
	receipts, err := s.store.ListReceiptsByObligation(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Len(receipts, 1)

	s.True(ierr.Is(s.lifecycle.Delete(s.ctx, o.ID), ierr.ErrNotFound))
}
