package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"propdesk.io/internal/audit"
	"propdesk.io/internal/auth"
	"propdesk.io/internal/certificate"
	"propdesk.io/internal/challenge"
	"propdesk.io/internal/obs"
	"propdesk.io/internal/order"
)

type placeOrderRequest struct {
	ChallengeID string `json:"challenge_id"`
}

func (a *API) handleOrdersCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, auth.RoleUser, auth.RoleAdmin)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.placeOrder(w, r, actor)
	case http.MethodGet:
		a.listOrders(w, r, actor)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) placeOrder(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	if actor.Role != auth.RoleUser {
		writeError(w, r, http.StatusForbidden, "only users purchase challenges")
		return
	}
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := a.deps.Challenges.Get(r.Context(), actor.TenantID, req.ChallengeID)
	if err != nil {
		handleChallengeError(w, r, err)
		return
	}
	// Drafts and archived challenges are not for sale.
	if ch.Status != challenge.StatusPublished {
		writeError(w, r, http.StatusNotFound, "challenge is not available")
		return
	}

	o, err := a.deps.Orders.Place(r.Context(), order.Placement{
		TenantID:    actor.TenantID,
		UserID:      actor.ID,
		ChallengeID: ch.ID,
		FinalPrice:  ch.EntryFee,
	})
	if err != nil {
		handleOrderError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "order.placed",
		zap.String("order_id", o.ID), zap.String("challenge_id", ch.ID))
	w.Header().Set("Location", "/v1/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, o)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var (
		items []order.Order
		err   error
	)
	switch actor.Role {
	case auth.RoleUser:
		items, err = a.deps.Orders.ListByUser(r.Context(), actor.TenantID, actor.ID)
	case auth.RoleAdmin:
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			items, err = a.deps.Orders.ListByUser(r.Context(), actor.TenantID, userID)
		} else if challengeID := r.URL.Query().Get("challenge_id"); challengeID != "" {
			items, err = a.deps.Orders.ListByChallenge(r.Context(), actor.TenantID, challengeID)
		} else {
			writeError(w, r, http.StatusBadRequest, "user_id or challenge_id query parameter is required")
			return
		}
	}
	if err != nil {
		handleOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleOrderResource dispatches /v1/orders/{id} and its settlement actions
// /complete and /fail, plus the caller's certificate listing.
func (a *API) handleOrderResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	id, action, _ := strings.Cut(path, "/")

	if id == "certificates" && action == "" {
		a.listCertificates(w, r)
		return
	}
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		actor, ok := requireRole(w, r, auth.RoleUser, auth.RoleAdmin)
		if !ok {
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		o, err := a.deps.Orders.OrderByID(r.Context(), actor.TenantID, id)
		if err != nil {
			handleOrderError(w, r, err)
			return
		}
		// Users read their own orders only.
		if actor.Role == auth.RoleUser && o.UserID != actor.ID {
			writeError(w, r, http.StatusNotFound, order.ErrNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, o)

	case "complete", "fail":
		actor, ok := requireRole(w, r, auth.RoleAdmin)
		if !ok {
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		status := order.PaymentCompleted
		if action == "fail" {
			status = order.PaymentFailed
		}
		o, err := a.deps.Orders.Settle(r.Context(), actor.TenantID, id, status)
		if err != nil {
			handleOrderError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "order."+string(status), zap.String("order_id", o.ID))
		if status == order.PaymentCompleted {
			a.issueCertificate(r.Context(), o)
		}
		writeJSON(w, http.StatusOK, o)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listCertificates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	if a.deps.Certificates == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []certificate.Certificate{}})
		return
	}
	items, err := a.deps.Certificates.CertificatesByUser(r.Context(), actor.TenantID, actor.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// issueCertificate renders and records the completion certificate for a
// settled order. Certificate failures never unwind the settlement, they are
// logged and the order stays completed.
func (a *API) issueCertificate(ctx context.Context, o *order.Order) {
	if a.deps.Certificates == nil || a.deps.Config.CertificatesDir == "" {
		return
	}

	u, err := a.deps.Users.UserByID(ctx, o.TenantID, o.UserID)
	if err != nil {
		obs.Logger().Warn("certificate skipped, user lookup failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	ch, err := a.deps.Challenges.Get(ctx, o.TenantID, o.ChallengeID)
	if err != nil {
		obs.Logger().Warn("certificate skipped, challenge lookup failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	t, err := a.deps.Tenants.TenantByID(ctx, o.TenantID)
	if err != nil {
		obs.Logger().Warn("certificate skipped, tenant lookup failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	facts := certificate.Facts{
		Number:        certificate.NewNumber(o.TenantID, o.UserID, now),
		TenantID:      o.TenantID,
		TenantName:    t.CompanyName,
		UserID:        o.UserID,
		UserFullName:  u.FullName,
		ChallengeName: ch.Name,
		AccountSize:   ch.AccountSize,
		CompletedAt:   now,
	}
	url, err := certificate.Write(a.deps.Config.CertificatesDir, facts)
	if err != nil {
		obs.Logger().Warn("certificate render failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	cert := &certificate.Certificate{
		TenantID: o.TenantID,
		UserID:   o.UserID,
		OrderID:  o.ID,
		Number:   facts.Number,
		URL:      url,
	}
	if err := a.deps.Certificates.CreateCertificate(ctx, cert); err != nil {
		obs.Logger().Warn("certificate record failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	_ = audit.LogEvent(ctx, "certificate.issued",
		zap.String("order_id", o.ID), zap.String("certificate_number", cert.Number))
	a.sendMail(o.TenantID, u.Email, "certificate_issued", map[string]string{
		"name":            u.FullName,
		"challenge_name":  ch.Name,
		"certificate_url": url,
	})
}

func handleOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotPending):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
