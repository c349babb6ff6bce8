package tenant

import (
	"context"
	"strings"
	"sync"
	"time"

	"propdesk.io/internal/ids"
)

// InMemory is a Store for tests and local development. The production
// implementation lives in internal/store/pg.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	plans   map[string]*Plan
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[string]*Tenant),
		plans:   make(map[string]*Plan),
	}
}

// AddPlan seeds a plan.
func (s *InMemory) AddPlan(p Plan) *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	cp := p
	s.plans[p.ID] = &cp
	return &cp
}

func (s *InMemory) CreateTenant(ctx context.Context, reg Registration, passwordHash string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(reg.Email))
	sub := strings.ToLower(strings.TrimSpace(reg.Subdomain))
	if email == "" || sub == "" || reg.PlanID == "" {
		return nil, ErrInvalidInput
	}
	for _, t := range s.tenants {
		if t.Email == email {
			return nil, ErrEmailTaken
		}
		if t.Subdomain == sub {
			return nil, ErrSubdomainTaken
		}
	}
	if _, ok := s.plans[reg.PlanID]; !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	t := &Tenant{
		ID:                 ids.New(),
		Email:              email,
		FullName:           reg.FullName,
		CompanyName:        reg.CompanyName,
		Phone:              reg.Phone,
		Subdomain:          sub,
		Active:             true,
		PlanID:             reg.PlanID,
		SubscriptionStatus: SubscriptionActive,
		SubscriptionStart:  now,
		SubscriptionEnd:    now.AddDate(0, 1, 0),
		PasswordHash:       passwordHash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *InMemory) TenantByID(ctx context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) TenantByEmail(ctx context.Context, email string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, t := range s.tenants {
		if t.Email == email {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) TenantBySubdomain(ctx context.Context, label string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	label = strings.ToLower(strings.TrimSpace(label))
	for _, t := range s.tenants {
		if t.Active && t.Subdomain == label {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) TenantByDomain(ctx context.Context, host string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host = strings.ToLower(strings.TrimSpace(host))
	for _, t := range s.tenants {
		if t.Active && t.CustomDomain != "" && t.CustomDomain == host {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) ListTenants(ctx context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) PlanByID(ctx context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) ListPlans(ctx context.Context) ([]*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Mutate applies fn to a stored tenant. Test helper for flipping
// subscription state and counters.
func (s *InMemory) Mutate(id string, fn func(*Tenant)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return false
	}
	fn(t)
	return true
}
