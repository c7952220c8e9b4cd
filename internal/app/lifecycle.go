// internal/app/lifecycle.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"
	"property_due_alerts/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CreateObligationInput is what a host surface supplies to open a new obligation.
type CreateObligationInput struct {
	OwnerID    string                `validate:"required,max=64"`
	Kind       obligation.Kind       `validate:"required,oneof=contract service maintenance"`
	Title      string                `validate:"required,max=200"`
	Amount     *decimal.Decimal      `validate:"-"`
	StartDate  *time.Time            `validate:"-"`
	DueDate    time.Time             `validate:"-"`
	Recurrence obligation.Recurrence `validate:"omitempty,oneof=none monthly bimonthly quarterly semiannual annual"`
	LeadTimes  []obligation.LeadTime `validate:"omitempty,unique,dive,oneof=on-due-date 1-day-before 1-week-before 15-days-before 1-month-before"`
	NotifyTo   string                `validate:"omitempty,max=320"`
}

// RenewResult is the closed cycle and, for recurring obligations, the new one.
type RenewResult struct {
	Renewed *obligation.Obligation
	Next    *obligation.Obligation
}

// ObligationLifecycle owns every status change of an obligation:
// active -> overdue -> renewed|cancelled, plus creation and deletion.
type ObligationLifecycle struct {
	repo             obligation.Repository
	validate         *validator.Validate
	defaultLeadTimes []obligation.LeadTime
	logger           *logrus.Entry
}

func NewObligationLifecycle(repo obligation.Repository, defaultLeadTimes []obligation.LeadTime, logger *logrus.Entry) *ObligationLifecycle {
	if len(defaultLeadTimes) == 0 {
		defaultLeadTimes = []obligation.LeadTime{obligation.LeadTimeOnDueDate}
	}
	return &ObligationLifecycle{
		repo:             repo,
		validate:         validator.New(),
		defaultLeadTimes: defaultLeadTimes,
		logger:           logger.WithField("component", "obligation_lifecycle"),
	}
}

func (l *ObligationLifecycle) validateInput(in CreateObligationInput) error {
	if err := l.validate.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag())
			})
			return ierr.WithError(err).WithHint(strings.Join(msgs, "; ")).Mark(ierr.ErrValidation)
		}
		return ierr.WithError(err).Mark(ierr.ErrValidation)
	}
	if in.DueDate.IsZero() {
		return ierr.NewError("due date is required").
			WithHint("Every obligation needs a due date").
			Mark(ierr.ErrInvalidObligation)
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return ierr.NewError("amount is negative").WithHint("Amount must not be negative").Mark(ierr.ErrValidation)
	}
	if in.StartDate != nil && obligation.DateOf(*in.StartDate).After(obligation.DateOf(in.DueDate)) {
		return ierr.NewError("start date after due date").
			WithHint("Start date must not be after the due date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Create validates the input and stores a new active obligation with one rule
// per lead time (the configured defaults when none are given).
func (l *ObligationLifecycle) Create(ctx context.Context, in CreateObligationInput) (*obligation.Obligation, error) {
	if in.Recurrence == "" {
		in.Recurrence = obligation.RecurrenceNone
	}
	if err := l.validateInput(in); err != nil {
		return nil, err
	}

	o := &obligation.Obligation{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OBLIGATION),
		OwnerID:    in.OwnerID,
		Kind:       in.Kind,
		Title:      strings.TrimSpace(in.Title),
		DueDate:    obligation.DateOf(in.DueDate),
		Recurrence: in.Recurrence,
		Status:     obligation.StatusActive,
		NotifyTo:   in.NotifyTo,
	}
	if in.Amount != nil {
		o.Amount = decimal.NewNullDecimal(*in.Amount)
	}
	if in.StartDate != nil {
		start := obligation.DateOf(*in.StartDate)
		o.StartDate = &start
	}

	leadTimes := in.LeadTimes
	if len(leadTimes) == 0 {
		leadTimes = l.defaultLeadTimes
	}
	o.Rules = lo.Map(lo.Uniq(leadTimes), func(lt obligation.LeadTime, _ int) obligation.AlertRule {
		return obligation.AlertRule{
			ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALERT_RULE),
			ObligationID: o.ID,
			LeadTime:     lt,
			Enabled:      true,
		}
	})

	if err := l.repo.Create(ctx, o); err != nil {
		l.logger.WithError(err).Error("Failed to create obligation")
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{
		"obligation_id": o.ID,
		"due_date":      o.DueDate.Format(obligation.DateLayout),
		"rules":         len(o.Rules),
	}).Info("Obligation created")
	return o, nil
}

func (l *ObligationLifecycle) Get(ctx context.Context, id string) (*obligation.Obligation, error) {
	return l.repo.GetByID(ctx, id)
}

func (l *ObligationLifecycle) List(ctx context.Context, filter obligation.ListFilter) ([]*obligation.Obligation, error) {
	return l.repo.List(ctx, filter)
}

// MarkOverdue is the periodic active -> overdue transition for everything due
// before asOf.
func (l *ObligationLifecycle) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	day := obligation.DateOf(asOf)
	n, err := l.repo.MarkOverdue(ctx, day)
	if err != nil {
		l.logger.WithError(err).Error("Failed to mark overdue obligations")
		return 0, err
	}
	if n > 0 {
		l.logger.WithFields(logrus.Fields{
			"as_of": day.Format(obligation.DateLayout),
			"count": n,
		}).Info("Obligations marked overdue")
	}
	return n, nil
}

// Renew closes the current cycle. For recurring obligations the next cycle is
// created with its due date advanced by the recurrence and a fresh, unfired copy
// of every alert rule.
func (l *ObligationLifecycle) Renew(ctx context.Context, id string, renewedOn time.Time) (*RenewResult, error) {
	o, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !obligation.CanTransition(o.Status, obligation.StatusRenewed) {
		return nil, ierr.NewErrorf("cannot renew obligation %s in status %s", o.ID, o.Status).
			WithHintf("Only active or overdue obligations can be renewed (current: %s)", o.Status).
			Mark(ierr.ErrInvalidTransition)
	}

	var next *obligation.Obligation
	if o.IsRecurring() {
		nextDue, err := obligation.NextDueDate(o.DueDate, o.Recurrence)
		if err != nil {
			return nil, err
		}
		prevDue := o.DueDate
		next = &obligation.Obligation{
			ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OBLIGATION),
			OwnerID:       o.OwnerID,
			Kind:          o.Kind,
			Title:         o.Title,
			Amount:        o.Amount,
			StartDate:     &prevDue,
			DueDate:       nextDue,
			Recurrence:    o.Recurrence,
			Status:        obligation.StatusActive,
			NotifyTo:      o.NotifyTo,
			RenewedFromID: o.ID,
		}
		next.Rules = lo.Map(o.Rules, func(r obligation.AlertRule, _ int) obligation.AlertRule {
			return obligation.AlertRule{
				ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALERT_RULE),
				ObligationID: next.ID,
				LeadTime:     r.LeadTime,
				Enabled:      r.Enabled,
			}
		})
	}

	day := obligation.DateOf(renewedOn)
	if err := l.repo.Renew(ctx, obligation.Renewal{ObligationID: o.ID, RenewedOn: day, Next: next}); err != nil {
		l.logger.WithError(err).WithField("obligation_id", o.ID).Error("Failed to renew obligation")
		return nil, err
	}

	o.Status = obligation.StatusRenewed
	o.LastFulfilledDate = &day
	fields := logrus.Fields{"obligation_id": o.ID}
	if next != nil {
		nextDue := next.DueDate
		o.NextCycleDate = &nextDue
		fields["next_obligation_id"] = next.ID
		fields["next_due_date"] = nextDue.Format(obligation.DateLayout)
	}
	l.logger.WithFields(fields).Info("Obligation renewed")
	return &RenewResult{Renewed: o, Next: next}, nil
}

// Cancel is terminal; alerts of a cancelled obligation are never scanned again.
func (l *ObligationLifecycle) Cancel(ctx context.Context, id string) (*obligation.Obligation, error) {
	o, err := l.repo.UpdateStatus(ctx, id, obligation.SourcesOf(obligation.StatusCancelled), obligation.StatusCancelled)
	if err != nil {
		if ierr.Is(err, ierr.ErrInvalidTransition) {
			return nil, ierr.WithError(err).
				WithHint("Only active or overdue obligations can be cancelled").
				Mark(ierr.ErrInvalidTransition)
		}
		return nil, err
	}
	l.logger.WithField("obligation_id", id).Info("Obligation cancelled")
	return o, nil
}

// Delete removes the obligation and its rules; dispatch receipts stay for audit.
func (l *ObligationLifecycle) Delete(ctx context.Context, id string) error {
	if err := l.repo.Delete(ctx, id); err != nil {
		return err
	}
	l.logger.WithField("obligation_id", id).Info("Obligation deleted")
	return nil
}
