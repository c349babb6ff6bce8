package ticket

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"propdesk.io/internal/auth"
	"propdesk.io/internal/ids"
)

// InMemory is a map-backed Service used by tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	tickets  map[string]*Ticket
	messages map[string][]Message
}

var _ Service = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		tickets:  make(map[string]*Ticket),
		messages: make(map[string][]Message),
	}
}

func (m *InMemory) Open(_ context.Context, p OpenParams) (*Ticket, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	t := &Ticket{
		ID:            ids.New(),
		TenantID:      p.Opener.TenantID,
		Number:        NewNumber(now),
		Subject:       strings.TrimSpace(p.Subject),
		Category:      strings.TrimSpace(p.Category),
		Priority:      p.Priority,
		Status:        StatusOpen,
		CreatedByRole: p.Opener.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p.Opener.Role == auth.RoleUser {
		t.UserID = p.Opener.ID
	}
	m.tickets[t.ID] = t
	m.messages[t.ID] = []Message{{
		ID:         ids.New(),
		TicketID:   t.ID,
		SenderID:   p.Opener.ID,
		SenderRole: p.Opener.Role,
		Body:       strings.TrimSpace(p.Body),
		CreatedAt:  now,
	}}
	return cloneTicket(t), nil
}

func (m *InMemory) Get(_ context.Context, viewer auth.Actor, id string) (*Ticket, []Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.visible(viewer, id)
	if err != nil {
		return nil, nil, err
	}
	msgs := make([]Message, len(m.messages[id]))
	copy(msgs, m.messages[id])
	return cloneTicket(t), msgs, nil
}

func (m *InMemory) List(_ context.Context, viewer auth.Actor, f Filter) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0)
	for _, t := range m.tickets {
		if !CanView(viewer, t) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if viewer.Role == auth.RoleAdmin && f.CreatedByRole != "" && t.CreatedByRole != f.CreatedByRole {
			continue
		}
		if viewer.Role == auth.RoleRoot && f.TenantID != "" && t.TenantID != f.TenantID {
			continue
		}
		s := Summary{Ticket: *cloneTicket(t), MessageCount: len(m.messages[t.ID])}
		if s.MessageCount > 0 {
			last := m.messages[t.ID][s.MessageCount-1].CreatedAt
			s.LastMessageAt = &last
		}
		out = append(out, s)
	}
	SortSummaries(out)
	return out, nil
}

func (m *InMemory) Append(_ context.Context, viewer auth.Actor, id, body string, internalNote bool) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if internalNote && !viewer.Role.In(auth.RoleAdmin, auth.RoleRoot) {
		return nil, fmt.Errorf("%w: internal notes", ErrForbidden)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.visible(viewer, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	msg := Message{
		ID:           ids.New(),
		TicketID:     t.ID,
		SenderID:     viewer.ID,
		SenderRole:   viewer.Role,
		Body:         strings.TrimSpace(body),
		InternalNote: internalNote,
		CreatedAt:    now,
	}
	m.messages[t.ID] = append(m.messages[t.ID], msg)
	if t.Status == StatusOpen {
		t.Status = StatusInProgress
	}
	t.UpdatedAt = now
	return &msg, nil
}

func (m *InMemory) SetStatus(_ context.Context, viewer auth.Actor, id string, status Status) (*Ticket, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !viewer.Role.In(auth.RoleAdmin, auth.RoleRoot) {
		return nil, fmt.Errorf("%w: status changes", ErrForbidden)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.visible(viewer, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t.Status = status
	if status == StatusResolved {
		t.ResolvedAt = &now
	}
	t.UpdatedAt = now
	return cloneTicket(t), nil
}

func (m *InMemory) Stats(_ context.Context, viewer auth.Actor, tenantID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, t := range m.tickets {
		if !CanView(viewer, t) {
			continue
		}
		if tenantID != "" && t.TenantID != tenantID {
			continue
		}
		s.Total++
		switch t.Status {
		case StatusOpen:
			s.Open++
		case StatusInProgress:
			s.InProgress++
		case StatusResolved:
			s.Resolved++
		case StatusClosed:
			s.Closed++
		}
		if t.Priority == PriorityUrgent {
			s.Urgent++
		}
	}
	return s, nil
}

// visible resolves a ticket id through the viewer's visibility matrix.
// Invisible tickets are indistinguishable from absent ones.
func (m *InMemory) visible(viewer auth.Actor, id string) (*Ticket, error) {
	t, ok := m.tickets[id]
	if !ok || !CanView(viewer, t) {
		return nil, ErrNotFound
	}
	return t, nil
}

func cloneTicket(t *Ticket) *Ticket {
	cp := *t
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

// SortSummaries orders by priority rank, then most recently updated.
func SortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Priority.Rank() != s[j].Priority.Rank() {
			return s[i].Priority.Rank() > s[j].Priority.Rank()
		}
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}
