package challenge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"propdesk.io/internal/ids"
	"propdesk.io/internal/quota"
	"propdesk.io/internal/tenant"
)

// InMemory implements Service for tests and local development. It is the
// reference semantics for the aggregate; the pg implementation in
// internal/store/pg mirrors it transactionally.
type InMemory struct {
	mu         sync.RWMutex
	tenants    *tenant.InMemory
	challenges map[string]*Challenge
	orders     map[string][]memOrder

	now func() time.Time
}

type memOrder struct {
	amount    decimal.Decimal
	completed bool
}

var _ Service = (*InMemory)(nil)

func NewInMemory(tenants *tenant.InMemory) *InMemory {
	return &InMemory{
		tenants:    tenants,
		challenges: make(map[string]*Challenge),
		orders:     make(map[string][]memOrder),
		now:        time.Now,
	}
}

// RecordOrder registers a purchase against a challenge. Used by the order
// store and by tests exercising the delete guard.
func (s *InMemory) RecordOrder(challengeID string, amount decimal.Decimal, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[challengeID] = append(s.orders[challengeID], memOrder{amount: amount, completed: completed})
}

// SettleOrder marks the oldest pending purchase of a challenge completed.
func (s *InMemory) SettleOrder(challengeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders[challengeID] {
		if !s.orders[challengeID][i].completed {
			s.orders[challengeID][i].completed = true
			return
		}
	}
}

func (s *InMemory) Create(ctx context.Context, tenantID string, d Draft) (*Challenge, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	c := &Challenge{
		Header: Header{
			ID:          ids.New(),
			TenantID:    tenantID,
			Name:        strings.TrimSpace(d.Name),
			Type:        d.Type,
			AccountSize: d.AccountSize,
			EntryFee:    d.EntryFee,
			Leverage:    d.Leverage,
			Currency:    d.Currency,
			Refundable:  d.Refundable,
			Status:      StatusDraft,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Sections:     cloneSections(d.Sections),
		Restrictions: d.Restrictions.WithDefaults(),
		Segments:     cloneSegments(d.Segments),
	}
	s.challenges[c.ID] = c
	return cloneChallenge(c), nil
}

func (s *InMemory) Get(ctx context.Context, tenantID, id string) (*Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.find(tenantID, id)
	if err != nil {
		return nil, err
	}
	return cloneChallenge(c), nil
}

func (s *InMemory) List(ctx context.Context, tenantID string, f ListFilter) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Summary
	for _, c := range s.challenges {
		if c.TenantID != tenantID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, s.summarize(c))
	}
	sortSummaries(out)
	return out, nil
}

func (s *InMemory) ListPublished(ctx context.Context, tenantID string) ([]Summary, error) {
	return s.List(ctx, tenantID, ListFilter{Status: StatusPublished})
}

func (s *InMemory) Update(ctx context.Context, tenantID, id string, u Update) (*Challenge, error) {
	if err := ValidateUpdate(u); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.find(tenantID, id)
	if err != nil {
		return nil, err
	}

	c.Name = strings.TrimSpace(u.Name)
	c.AccountSize = u.AccountSize
	c.EntryFee = u.EntryFee
	c.Leverage = u.Leverage
	c.Currency = u.Currency
	c.Refundable = u.Refundable
	c.UpdatedAt = s.now().UTC()

	// Full-replace semantics: prior sections and segments are gone entirely.
	c.Sections = cloneSections(u.Sections)
	c.Restrictions = u.Restrictions
	c.Segments = cloneSegments(u.Segments)

	return cloneChallenge(c), nil
}

func (s *InMemory) Publish(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.find(tenantID, id)
	if err != nil {
		return err
	}
	if c.Status != StatusDraft {
		return ErrInvalidTransition
	}

	tn, err := s.tenants.TenantByID(ctx, tenantID)
	if err != nil {
		return ErrNotFound
	}
	plan, err := s.tenants.PlanByID(ctx, tn.PlanID)
	if err != nil {
		return ErrNotFound
	}
	if err := quota.Check(quota.ResourceChallenges, plan.ChallengeLimit, tn.ChallengesUsed); err != nil {
		return err
	}

	c.Status = StatusPublished
	c.UpdatedAt = s.now().UTC()
	s.tenants.Mutate(tenantID, func(t *tenant.Tenant) { t.ChallengesUsed++ })
	return nil
}

func (s *InMemory) Duplicate(ctx context.Context, tenantID, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.find(tenantID, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cp := cloneChallenge(src)
	cp.ID = ids.New()
	cp.Name = src.Name + CopySuffix
	cp.Status = StatusDraft
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.challenges[cp.ID] = cp
	return cloneChallenge(cp), nil
}

func (s *InMemory) Archive(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.find(tenantID, id)
	if err != nil {
		return err
	}
	if !c.Status.CanArchive() {
		return ErrInvalidTransition
	}
	c.Status = StatusArchived
	c.UpdatedAt = s.now().UTC()
	return nil
}

func (s *InMemory) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.find(tenantID, id)
	if err != nil {
		return err
	}
	if len(s.orders[c.ID]) > 0 {
		return ErrHasOrders
	}
	delete(s.challenges, c.ID)
	return nil
}

func (s *InMemory) find(tenantID, id string) (*Challenge, error) {
	c, ok := s.challenges[id]
	if !ok || c.TenantID != tenantID {
		// Cross-tenant ids are indistinguishable from absent ones.
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) summarize(c *Challenge) Summary {
	sum := Summary{Header: c.Header, TotalRevenue: decimal.Zero}
	for _, o := range s.orders[c.ID] {
		if o.completed {
			sum.SalesCount++
			sum.TotalRevenue = sum.TotalRevenue.Add(o.amount)
		}
	}
	return sum
}

func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

func cloneSections(in []RuleSection) []RuleSection {
	out := make([]RuleSection, len(in))
	for i, s := range in {
		rules := make(map[string]string, len(s.Rules))
		for k, v := range s.Rules {
			rules[k] = v
		}
		out[i] = RuleSection{Name: s.Name, Order: s.Order, Rules: rules}
	}
	return out
}

func cloneSegments(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneChallenge(c *Challenge) *Challenge {
	cp := &Challenge{
		Header:       c.Header,
		Sections:     cloneSections(c.Sections),
		Restrictions: c.Restrictions,
		Segments:     cloneSegments(c.Segments),
	}
	// Reads present sections in order-key order, like the SQL implementation.
	sort.SliceStable(cp.Sections, func(i, j int) bool { return cp.Sections[i].Order < cp.Sections[j].Order })
	return cp
}
