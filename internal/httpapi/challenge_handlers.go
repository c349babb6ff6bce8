package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"propdesk.io/internal/audit"
	"propdesk.io/internal/auth"
	"propdesk.io/internal/challenge"
	"propdesk.io/internal/quota"
	"propdesk.io/internal/tenant"
)

func (a *API) handleChallengesCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.createChallenge(w, r, actor)
	case http.MethodGet:
		f := challenge.ListFilter{Status: challenge.Status(r.URL.Query().Get("status"))}
		if f.Status != "" && !f.Status.Valid() {
			writeError(w, r, http.StatusBadRequest, "unknown status filter")
			return
		}
		items, err := a.deps.Challenges.List(r.Context(), actor.TenantID, f)
		if err != nil {
			handleChallengeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createChallenge(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	adv, ok := a.gateSubscription(w, r, actor)
	if !ok {
		return
	}

	var draft challenge.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.deps.Challenges.Create(r.Context(), actor.TenantID, draft)
	if err != nil {
		handleChallengeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "challenge.created", zap.String("challenge_id", c.ID))

	w.Header().Set("Location", "/v1/challenges/"+c.ID)
	writeJSON(w, http.StatusCreated, withWarning(c, adv))
}

// handleChallengeResource dispatches /v1/challenges/{id} and its lifecycle
// actions /publish, /archive, /duplicate.
func (a *API) handleChallengeResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/challenges/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		a.challengeByID(w, r, actor, id)
	case "publish", "archive", "duplicate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.challengeAction(w, r, actor, id, action)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) challengeByID(w http.ResponseWriter, r *http.Request, actor auth.Actor, id string) {
	switch r.Method {
	case http.MethodGet:
		c, err := a.deps.Challenges.Get(r.Context(), actor.TenantID, id)
		if err != nil {
			handleChallengeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)

	case http.MethodPut:
		adv, ok := a.gateSubscription(w, r, actor)
		if !ok {
			return
		}
		var u challenge.Update
		if err := decodeJSON(w, r, &u); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.deps.Challenges.Update(r.Context(), actor.TenantID, id, u)
		if err != nil {
			handleChallengeError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "challenge.updated", zap.String("challenge_id", id))
		writeJSON(w, http.StatusOK, withWarning(c, adv))

	case http.MethodDelete:
		if _, ok := a.gateSubscription(w, r, actor); !ok {
			return
		}
		if err := a.deps.Challenges.Delete(r.Context(), actor.TenantID, id); err != nil {
			handleChallengeError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "challenge.deleted", zap.String("challenge_id", id))
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) challengeAction(w http.ResponseWriter, r *http.Request, actor auth.Actor, id, action string) {
	adv, ok := a.gateSubscription(w, r, actor)
	if !ok {
		return
	}

	switch action {
	case "publish":
		if err := a.deps.Challenges.Publish(r.Context(), actor.TenantID, id); err != nil {
			handleChallengeError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "challenge.published", zap.String("challenge_id", id))
		writeJSON(w, http.StatusOK, withWarning(map[string]any{"id": id, "status": challenge.StatusPublished}, adv))

	case "archive":
		if err := a.deps.Challenges.Archive(r.Context(), actor.TenantID, id); err != nil {
			handleChallengeError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "challenge.archived", zap.String("challenge_id", id))
		writeJSON(w, http.StatusOK, withWarning(map[string]any{"id": id, "status": challenge.StatusArchived}, adv))

	case "duplicate":
		cp, err := a.deps.Challenges.Duplicate(r.Context(), actor.TenantID, id)
		if err != nil {
			handleChallengeError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "challenge.duplicated",
			zap.String("source_id", id), zap.String("challenge_id", cp.ID))
		w.Header().Set("Location", "/v1/challenges/"+cp.ID)
		writeJSON(w, http.StatusCreated, withWarning(cp, adv))
	}
}

// handleStorefront serves the public catalogue of the request's tenant.
func (a *API) handleStorefront(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	t, ok := requireTenant(w, r)
	if !ok {
		return
	}
	items, err := a.deps.Challenges.ListPublished(r.Context(), t.ID)
	if err != nil {
		handleChallengeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// gateSubscription blocks admin writes for expired or suspended tenants and
// passes a renewal advisory through on success.
func (a *API) gateSubscription(w http.ResponseWriter, r *http.Request, actor auth.Actor) (*tenant.Advisory, bool) {
	adv, err := a.checkSubscription(r.Context(), actor.TenantID)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrSubscriptionExpired), errors.Is(err, tenant.ErrSuspended):
			writeError(w, r, http.StatusForbidden, err.Error())
		case errors.Is(err, tenant.ErrNotFound):
			writeError(w, r, http.StatusNotFound, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	return adv, true
}

// withWarning attaches a subscription advisory to a response body.
func withWarning(v any, adv *tenant.Advisory) any {
	if adv == nil {
		return v
	}
	return map[string]any{"result": v, "warning": adv.String()}
}

func handleChallengeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, challenge.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, quota.ErrExceeded):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, challenge.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, challenge.ErrHasOrders), errors.Is(err, challenge.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
