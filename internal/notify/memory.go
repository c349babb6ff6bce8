package notify

import (
	"context"
	"sync"
	"time"

	"propdesk.io/internal/ids"
)

// InMemory is a map-backed Store for tests and local runs.
type InMemory struct {
	mu        sync.RWMutex
	templates []Template
	logs      map[string]*EmailLog
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{logs: make(map[string]*EmailLog)}
}

// AddTemplate registers a template; empty tenantID makes it global.
func (m *InMemory) AddTemplate(t Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	m.templates = append(m.templates, t)
}

func (m *InMemory) TemplateByName(_ context.Context, tenantID, name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var global *Template
	for i := range m.templates {
		t := &m.templates[i]
		if t.Name != name {
			continue
		}
		if t.TenantID == tenantID && tenantID != "" {
			cp := *t
			return &cp, nil
		}
		if t.TenantID == "" {
			global = t
		}
	}
	if global != nil {
		cp := *global
		return &cp, nil
	}
	return nil, ErrTemplateNotFound
}

func (m *InMemory) CreateEmailLog(_ context.Context, l *EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = ids.New()
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	cp := *l
	m.logs[l.ID] = &cp
	return nil
}

func (m *InMemory) SetEmailLogStatus(_ context.Context, id string, status LogStatus, sendErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.logs[id]; ok {
		l.Status = status
		l.Error = sendErr
		l.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Logs returns a snapshot of delivery attempts for assertions.
func (m *InMemory) Logs() []EmailLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EmailLog, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, *l)
	}
	return out
}
