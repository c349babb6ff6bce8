package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"propdesk.io/internal/ids"
	"propdesk.io/internal/quota"
	"propdesk.io/internal/tenant"
)

// InMemory implements Store against a tenant.InMemory for tests and local
// development; quota accounting mirrors the transactional pg implementation.
type InMemory struct {
	mu      sync.RWMutex
	tenants *tenant.InMemory
	users   map[string]*User

	now func() time.Time
}

var _ Store = (*InMemory)(nil)

func NewInMemory(tenants *tenant.InMemory) *InMemory {
	return &InMemory{
		tenants: tenants,
		users:   make(map[string]*User),
		now:     time.Now,
	}
}

func (s *InMemory) Register(ctx context.Context, reg Registration, passwordHash string) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(reg.Email))
	for _, u := range s.users {
		if u.TenantID == reg.TenantID && u.Email == email {
			return nil, ErrEmailTaken
		}
	}

	tn, err := s.tenants.TenantByID(ctx, reg.TenantID)
	if err != nil {
		return nil, ErrNotFound
	}
	plan, err := s.tenants.PlanByID(ctx, tn.PlanID)
	if err != nil {
		return nil, ErrNotFound
	}
	if err := quota.Check(quota.ResourceUsers, plan.UserLimit, tn.UsersCount); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		ID:           ids.New(),
		TenantID:     reg.TenantID,
		Email:        email,
		FullName:     strings.TrimSpace(reg.FullName),
		Phone:        strings.TrimSpace(reg.Phone),
		Active:       true,
		ReferralCode: NewReferralCode(reg.FullName, now),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if code := strings.TrimSpace(reg.ReferralCode); code != "" {
		// Unknown referral codes are ignored, matching registration being
		// best-effort about attribution.
		for _, ref := range s.users {
			if ref.TenantID == reg.TenantID && ref.ReferralCode == code {
				u.ReferredBy = ref.ID
				break
			}
		}
	}

	s.users[u.ID] = u
	s.tenants.Mutate(reg.TenantID, func(t *tenant.Tenant) { t.UsersCount++ })

	cp := *u
	return &cp, nil
}

func (s *InMemory) UserByID(ctx context.Context, tenantID, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) UserByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) ListUsers(ctx context.Context, tenantID string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, u := range s.users {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}
