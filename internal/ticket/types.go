// Package ticket owns the three-tier support workflow: users escalate to
// their tenant's admin, admins escalate to the platform operator.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"propdesk.io/internal/auth"
)

var (
	ErrNotFound      = errors.New("ticket: not found")
	ErrInvalidInput  = errors.New("ticket: invalid input")
	ErrInvalidStatus = errors.New("ticket: invalid status")
	// ErrForbidden covers operations the viewer's role may never perform on
	// any ticket (as opposed to tickets it simply cannot see, which are
	// ErrNotFound).
	ErrForbidden = errors.New("ticket: operation not allowed for role")
)

// Status is the ticket state machine. The only implicit transition is
// open→in_progress when a message is appended; resolved and closed require
// an explicit admin/root request.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority affects default sort order only, never access control.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities for sorting; higher sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate root. UserID is empty for admin→root escalations.
// CreatedByRole fixes who opened the conversation and therefore who the
// other side is.
type Ticket struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id,omitempty"`
	Number        string    `json:"ticket_number"`
	Subject       string    `json:"subject"`
	Category      string    `json:"category,omitempty"`
	Priority      Priority  `json:"priority"`
	Status        Status    `json:"status"`
	CreatedByRole auth.Role `json:"created_by_role"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Message is one entry in the append-only conversation. Internal notes are
// stored in the same sequence; excluding them from user-facing reads is the
// caller's read-time responsibility.
type Message struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	SenderID     string    `json:"sender_id"`
	SenderRole   auth.Role `json:"sender_role"`
	Body         string    `json:"message"`
	InternalNote bool      `json:"is_internal_note"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is a list row with conversation annotations.
type Summary struct {
	Ticket
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// OpenParams creates a ticket with its seed message. For user-opened tickets
// the opener is the bound user; for admin-opened (escalation) tickets UserID
// stays empty.
type OpenParams struct {
	Opener   auth.Actor
	Subject  string
	Category string
	Priority Priority
	Body     string
}

// Validate normalises and checks the open payload.
func (p *OpenParams) Validate() error {
	if !p.Opener.Role.In(auth.RoleUser, auth.RoleAdmin) {
		return fmt.Errorf("%w: tickets are opened by users or admins", ErrForbidden)
	}
	if p.Opener.TenantID == "" {
		return fmt.Errorf("%w: opener has no tenant", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if !p.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, p.Priority)
	}
	return nil
}

// Filter narrows ticket listings. TenantID is honoured only for root
// viewers; CreatedByRole only for admin viewers.
type Filter struct {
	Status        Status
	CreatedByRole auth.Role
	TenantID      string
}

// Stats is a per-tenant (or, for root, platform-wide) status breakdown.
type Stats struct {
	Total      int `json:"total_tickets"`
	Open       int `json:"open_tickets"`
	InProgress int `json:"in_progress_tickets"`
	Resolved   int `json:"resolved_tickets"`
	Closed     int `json:"closed_tickets"`
	Urgent     int `json:"urgent_tickets"`
}

// Service is the workflow engine contract. Visibility rules: a user acts only
// on tickets bound to them (anything else is ErrNotFound); an admin acts on
// tickets of their tenant regardless of created_by_role; root acts only on
// tickets with created_by_role=admin. Tickets are never deleted.
type Service interface {
	Open(ctx context.Context, p OpenParams) (*Ticket, error)
	Get(ctx context.Context, viewer auth.Actor, id string) (*Ticket, []Message, error)
	List(ctx context.Context, viewer auth.Actor, f Filter) ([]Summary, error)
	Append(ctx context.Context, viewer auth.Actor, id, body string, internalNote bool) (*Message, error)
	SetStatus(ctx context.Context, viewer auth.Actor, id string, status Status) (*Ticket, error)
	Stats(ctx context.Context, viewer auth.Actor, tenantID string) (Stats, error)
}

// NewNumber generates a human-facing ticket number.
func NewNumber(now time.Time) string {
	return fmt.Sprintf("TKT-%d-%03d", now.UnixMilli(), rand.Intn(1000))
}

// CanView implements the visibility matrix for a single ticket.
func CanView(viewer auth.Actor, t *Ticket) bool {
	switch viewer.Role {
	case auth.RoleUser:
		return t.UserID != "" && t.UserID == viewer.ID && t.TenantID == viewer.TenantID
	case auth.RoleAdmin:
		return t.TenantID == viewer.TenantID
	case auth.RoleRoot:
		return t.CreatedByRole == auth.RoleAdmin
	}
	return false
}
