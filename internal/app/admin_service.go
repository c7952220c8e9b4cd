package app

import (
	"context"
	"fmt"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// AdminService gates the lifecycle operations exposed to chat admins.
type AdminService struct {
	lifecycle       *ObligationLifecycle
	alerts          *AlertService
	adminTelegramID int64
	ownerID         string
}

func NewAdminService(lifecycle *ObligationLifecycle, alerts *AlertService, adminID int64, ownerID string) *AdminService {
	return &AdminService{
		lifecycle:       lifecycle,
		alerts:          alerts,
		adminTelegramID: adminID,
		ownerID:         ownerID,
	}
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if s.adminTelegramID == 0 || performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// AddObligation creates an obligation owned by the bot's property, using the
// default lead times.
func (s *AdminService) AddObligation(ctx context.Context, performingAdminID int64, kind obligation.Kind, due time.Time, recurrence obligation.Recurrence, title string) (*obligation.Obligation, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.lifecycle.Create(ctx, CreateObligationInput{
		OwnerID:    s.ownerID,
		Kind:       kind,
		Title:      title,
		DueDate:    due,
		Recurrence: recurrence,
	})
}

// ListObligations lists obligations in the given statuses (all when empty).
func (s *AdminService) ListObligations(ctx context.Context, performingAdminID int64, statuses []obligation.Status) ([]*obligation.Obligation, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.lifecycle.List(ctx, obligation.ListFilter{OwnerID: s.ownerID, Statuses: statuses})
}

func (s *AdminService) RenewObligation(ctx context.Context, performingAdminID int64, id string, renewedOn time.Time) (*RenewResult, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.lifecycle.Renew(ctx, id, renewedOn)
}

func (s *AdminService) CancelObligation(ctx context.Context, performingAdminID int64, id string) (*obligation.Obligation, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.lifecycle.Cancel(ctx, id)
}

func (s *AdminService) DeleteObligation(ctx context.Context, performingAdminID int64, id string) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	return s.lifecycle.Delete(ctx, id)
}

// PreviewDue lists the alerts a cycle would dispatch on asOf without claiming any.
func (s *AdminService) PreviewDue(ctx context.Context, performingAdminID int64, asOf time.Time) ([]dispatch.DueAlert, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.alerts.PreviewDueAlerts(ctx, asOf)
}
