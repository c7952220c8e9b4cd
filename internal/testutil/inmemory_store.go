package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"
	ierr "property_due_alerts/internal/errors"

	"github.com/samber/lo"
)

// InMemoryStore implements obligation.Repository and dispatch.Repository over
// maps guarded by one mutex, so a claim is as atomic as the SQL versions.
// Values are copied on the way in and out.
type InMemoryStore struct {
	mu          sync.RWMutex
	obligations map[string]*obligation.Obligation
	receipts    map[string]*dispatch.Receipt

	// FailWith, when set, is returned (marked ErrStoreUnavailable) by every call.
	FailWith error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		obligations: make(map[string]*obligation.Obligation),
		receipts:    make(map[string]*dispatch.Receipt),
	}
}

// Clear drops all data and the injected failure.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations = make(map[string]*obligation.Obligation)
	s.receipts = make(map[string]*dispatch.Receipt)
	s.FailWith = nil
}

func (s *InMemoryStore) fail() error {
	if s.FailWith == nil {
		return nil
	}
	return ierr.WithError(s.FailWith).Mark(ierr.ErrStoreUnavailable)
}

func copyObligation(o *obligation.Obligation) *obligation.Obligation {
	cp := *o
	cp.Rules = make([]obligation.AlertRule, len(o.Rules))
	copy(cp.Rules, o.Rules)
	return &cp
}

func (s *InMemoryStore) Create(ctx context.Context, o *obligation.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.obligations[o.ID]; ok {
		return ierr.NewErrorf("obligation %s already exists", o.ID).Mark(ierr.ErrValidation)
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	s.obligations[o.ID] = copyObligation(o)
	return nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*obligation.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	o, ok := s.obligations[id]
	if !ok {
		return nil, ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
	}
	return copyObligation(o), nil
}

func (s *InMemoryStore) List(ctx context.Context, filter obligation.ListFilter) ([]*obligation.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	out := make([]*obligation.Obligation, 0)
	for _, o := range s.obligations {
		if filter.OwnerID != "" && o.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, o.Status) {
			continue
		}
		out = append(out, copyObligation(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveWithRules(ctx context.Context) ([]*obligation.Obligation, error) {
	return s.List(ctx, obligation.ListFilter{Statuses: []obligation.Status{obligation.StatusActive}})
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, id string, from []obligation.Status, to obligation.Status) (*obligation.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	o, ok := s.obligations[id]
	if !ok {
		return nil, ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
	}
	if !lo.Contains(from, o.Status) {
		return nil, ierr.NewErrorf("obligation %s is %s", id, o.Status).Mark(ierr.ErrInvalidTransition)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return copyObligation(o), nil
}

func (s *InMemoryStore) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, err
	}
	var n int64
	for _, o := range s.obligations {
		if o.Status == obligation.StatusActive && o.DueDate.Before(asOf) {
			o.Status = obligation.StatusOverdue
			o.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Renew(ctx context.Context, r obligation.Renewal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	o, ok := s.obligations[r.ObligationID]
	if !ok {
		return ierr.NewErrorf("obligation %s not found", r.ObligationID).Mark(ierr.ErrNotFound)
	}
	if !obligation.CanTransition(o.Status, obligation.StatusRenewed) {
		return ierr.NewErrorf("obligation %s is %s", o.ID, o.Status).Mark(ierr.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	renewedOn := r.RenewedOn
	o.Status = obligation.StatusRenewed
	o.LastFulfilledDate = &renewedOn
	o.UpdatedAt = now
	if r.Next != nil {
		next := r.Next.DueDate
		o.NextCycleDate = &next
		r.Next.CreatedAt, r.Next.UpdatedAt = now, now
		s.obligations[r.Next.ID] = copyObligation(r.Next)
	}
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.obligations[id]; !ok {
		return ierr.NewErrorf("obligation %s not found", id).Mark(ierr.ErrNotFound)
	}
	delete(s.obligations, id)
	return nil
}

// --- dispatch.Repository ---

func (s *InMemoryStore) findRule(ruleID string) (*obligation.Obligation, *obligation.AlertRule) {
	for _, o := range s.obligations {
		for i := range o.Rules {
			if o.Rules[i].ID == ruleID {
				return o, &o.Rules[i]
			}
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ClaimRule(ctx context.Context, c dispatch.Claim) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return false, err
	}
	owner, rule := s.findRule(c.RuleID)
	if rule == nil {
		return false, ierr.NewErrorf("alert rule %s not found", c.RuleID).Mark(ierr.ErrNotFound)
	}
	if rule.Fired || !rule.Enabled || owner.Status != obligation.StatusActive {
		return false, nil
	}
	firedAt := c.FiredAt
	rule.Fired = true
	rule.FiredAt = &firedAt
	rcpt := *c.Receipt
	rcpt.CreatedAt = firedAt
	s.receipts[rcpt.ID] = &rcpt
	return true, nil
}

func (s *InMemoryStore) UpdateReceiptOutcome(ctx context.Context, receiptID string, outcome dispatch.Outcome, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	r, ok := s.receipts[receiptID]
	if !ok {
		return ierr.NewErrorf("receipt %s not found", receiptID).Mark(ierr.ErrNotFound)
	}
	if r.Outcome != dispatch.OutcomePending {
		return ierr.NewErrorf("receipt %s is already %s", receiptID, r.Outcome).Mark(ierr.ErrInvalidTransition)
	}
	r.Outcome = outcome
	r.Detail = detail
	r.CompletedAt = &at
	return nil
}

func (s *InMemoryStore) GetReceipt(ctx context.Context, receiptID string) (*dispatch.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	r, ok := s.receipts[receiptID]
	if !ok {
		return nil, ierr.NewErrorf("receipt %s not found", receiptID).Mark(ierr.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) listReceipts(match func(*dispatch.Receipt) bool) ([]*dispatch.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	out := make([]*dispatch.Receipt, 0)
	for _, r := range s.receipts {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListReceiptsByRule(ctx context.Context, ruleID string) ([]*dispatch.Receipt, error) {
	return s.listReceipts(func(r *dispatch.Receipt) bool { return r.AlertRuleID == ruleID })
}

func (s *InMemoryStore) ListReceiptsByObligation(ctx context.Context, obligationID string) ([]*dispatch.Receipt, error) {
	return s.listReceipts(func(r *dispatch.Receipt) bool { return r.ObligationID == obligationID })
}

// Rule returns a copy of the stored rule, for assertions.
func (s *InMemoryStore) Rule(ruleID string) (obligation.AlertRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, r := s.findRule(ruleID)
	if r == nil {
		return obligation.AlertRule{}, false
	}
	return *r, true
}
