package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"propdesk.io/internal/ids"
)

// ChallengeLedger is the slice of the challenge engine orders feed into:
// purchases are mirrored so that list annotations and the delete guard see
// them.
type ChallengeLedger interface {
	RecordOrder(challengeID string, amount decimal.Decimal, completed bool)
	SettleOrder(challengeID string)
}

// InMemory is a map-backed Store for tests and local runs, mirroring
// purchases into the challenge ledger.
type InMemory struct {
	mu         sync.RWMutex
	orders     map[string]*Order
	challenges ChallengeLedger

	now func() time.Time
}

var _ Store = (*InMemory)(nil)

func NewInMemory(challenges ChallengeLedger) *InMemory {
	return &InMemory{
		orders:     make(map[string]*Order),
		challenges: challenges,
		now:        time.Now,
	}
}

func (m *InMemory) Place(_ context.Context, p Placement) (*Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o := &Order{
		ID:            ids.New(),
		TenantID:      p.TenantID,
		UserID:        p.UserID,
		ChallengeID:   p.ChallengeID,
		FinalPrice:    p.FinalPrice,
		PaymentStatus: PaymentPending,
		CreatedAt:     m.now().UTC(),
	}
	m.orders[o.ID] = o
	if m.challenges != nil {
		m.challenges.RecordOrder(o.ChallengeID, o.FinalPrice, false)
	}
	return clone(o), nil
}

func (m *InMemory) Settle(_ context.Context, tenantID, id string, status PaymentStatus) (*Order, error) {
	if status != PaymentCompleted && status != PaymentFailed {
		return nil, ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if o.PaymentStatus != PaymentPending {
		return nil, ErrNotPending
	}
	o.PaymentStatus = status
	if status == PaymentCompleted {
		now := m.now().UTC()
		o.CompletedAt = &now
		if m.challenges != nil {
			m.challenges.SettleOrder(o.ChallengeID)
		}
	}
	return clone(o), nil
}

func (m *InMemory) OrderByID(_ context.Context, tenantID, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (m *InMemory) ListByUser(_ context.Context, tenantID, userID string) ([]Order, error) {
	return m.list(func(o *Order) bool {
		return o.TenantID == tenantID && o.UserID == userID
	}), nil
}

func (m *InMemory) ListByChallenge(_ context.Context, tenantID, challengeID string) ([]Order, error) {
	return m.list(func(o *Order) bool {
		return o.TenantID == tenantID && o.ChallengeID == challengeID
	}), nil
}

func (m *InMemory) list(keep func(*Order) bool) []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func clone(o *Order) *Order {
	cp := *o
	if o.CompletedAt != nil {
		at := *o.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
