package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"propdesk.io/internal/audit"
	"propdesk.io/internal/auth"
	"propdesk.io/internal/ticket"
)

type openTicketRequest struct {
	Subject  string          `json:"subject"`
	Category string          `json:"category"`
	Priority ticket.Priority `json:"priority"`
	Body     string          `json:"message"`
}

type appendMessageRequest struct {
	Body         string `json:"message"`
	InternalNote bool   `json:"is_internal_note"`
}

type setStatusRequest struct {
	Status ticket.Status `json:"status"`
}

func (a *API) handleTicketsCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, auth.RoleUser, auth.RoleAdmin, auth.RoleRoot)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.openTicket(w, r, actor)
	case http.MethodGet:
		q := r.URL.Query()
		f := ticket.Filter{
			Status:        ticket.Status(q.Get("status")),
			CreatedByRole: auth.Role(q.Get("created_by_role")),
			TenantID:      q.Get("tenant_id"),
		}
		if f.Status != "" && !f.Status.Valid() {
			writeError(w, r, http.StatusBadRequest, "unknown status filter")
			return
		}
		items, err := a.deps.Tickets.List(r.Context(), actor, f)
		if err != nil {
			handleTicketError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) openTicket(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req openTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.deps.Tickets.Open(r.Context(), ticket.OpenParams{
		Opener:   actor,
		Subject:  req.Subject,
		Category: req.Category,
		Priority: req.Priority,
		Body:     req.Body,
	})
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "ticket.opened",
		zap.String("ticket_id", t.ID), zap.String("ticket_number", t.Number))
	w.Header().Set("Location", "/v1/tickets/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleTicketStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleRoot)
	if !ok {
		return
	}
	tenantID := actor.TenantID
	if actor.Role == auth.RoleRoot {
		tenantID = r.URL.Query().Get("tenant_id")
	}
	stats, err := a.deps.Tickets.Stats(r.Context(), actor, tenantID)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleTicketResource dispatches /v1/tickets/{id}, /v1/tickets/{id}/messages
// and /v1/tickets/{id}/status.
func (a *API) handleTicketResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, auth.RoleUser, auth.RoleAdmin, auth.RoleRoot)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/tickets/")
	id, sub, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		t, msgs, err := a.deps.Tickets.Get(r.Context(), actor, id)
		if err != nil {
			handleTicketError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ticket":   t,
			"messages": visibleMessages(actor, msgs),
		})

	case "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req appendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.deps.Tickets.Append(r.Context(), actor, id, req.Body, req.InternalNote)
		if err != nil {
			handleTicketError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)

	case "status":
		if r.Method != http.MethodPost && r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPost, http.MethodPatch)
			return
		}
		var req setStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.deps.Tickets.SetStatus(r.Context(), actor, id, req.Status)
		if err != nil {
			handleTicketError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "ticket.status_changed",
			zap.String("ticket_id", id), zap.String("status", string(req.Status)))
		writeJSON(w, http.StatusOK, t)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// visibleMessages strips internal notes from what a user may read. Admin and
// root always see the full conversation.
func visibleMessages(viewer auth.Actor, msgs []ticket.Message) []ticket.Message {
	if viewer.Role != auth.RoleUser {
		return msgs
	}
	out := make([]ticket.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.InternalNote {
			continue
		}
		out = append(out, m)
	}
	return out
}

func handleTicketError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ticket.ErrInvalidInput), errors.Is(err, ticket.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ticket.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ticket.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
