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
	"propdesk.io/internal/quota"
	"propdesk.io/internal/tenant"
	"propdesk.io/internal/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Actor     any       `json:"actor,omitempty"`
	Warning   string    `json:"warning,omitempty"`
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
}

// handleUserLogin authenticates an end customer. It only exists on a tenant
// host: the same email may belong to different people under different
// tenants.
func (a *API) handleUserLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.allowLogin(w, r) {
		return
	}
	t, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.deps.Users.UserByEmail(r.Context(), t.ID, req.Email)
	if err != nil || !u.Active || auth.VerifyPassword(u.PasswordHash, req.Password) != nil {
		a.failedLogin(r.Context(), req.Email)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.IssueToken(u.ID, auth.RoleUser, t.ID, a.deps.Config.TokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.login",
		zap.String("user_id", u.ID), zap.String("tenant_id", t.ID))

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(a.deps.Config.TokenTTL),
		Actor:     u,
	})
}

// handleAdminLogin authenticates a tenant operator against the tenant record
// itself. Blocking subscription states still allow login; a near-expiry
// subscription attaches a warning.
func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.allowLogin(w, r) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	t, err := a.deps.Tenants.TenantByEmail(r.Context(), req.Email)
	if err != nil || !t.Active || auth.VerifyPassword(t.PasswordHash, req.Password) != nil {
		a.failedLogin(r.Context(), req.Email)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	adv, err := tenant.CheckSubscription(t, time.Now().UTC())
	if err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	token, err := auth.IssueToken(t.ID, auth.RoleAdmin, t.ID, a.deps.Config.TokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	resp := loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(a.deps.Config.TokenTTL),
		Actor:     t,
	}
	if adv != nil {
		resp.Warning = adv.String()
	}
	_ = audit.LogEvent(r.Context(), "auth.admin.login", zap.String("tenant_id", t.ID))

	writeJSON(w, http.StatusOK, resp)
}

// handleRootLogin authenticates the platform operator against bootstrap
// credentials from the environment.
func (a *API) handleRootLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.allowLogin(w, r) {
		return
	}
	cfg := a.deps.Config
	if cfg.RootEmail == "" || cfg.RootPasswordHash == "" {
		writeError(w, r, http.StatusForbidden, "root login is not configured")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !strings.EqualFold(strings.TrimSpace(req.Email), cfg.RootEmail) ||
		auth.VerifyPassword(cfg.RootPasswordHash, req.Password) != nil {
		a.failedLogin(r.Context(), req.Email)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.IssueToken("root", auth.RoleRoot, "", cfg.TokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.root.login", zap.String("email", cfg.RootEmail))

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(cfg.TokenTTL),
	})
}

// handleRegister signs an end customer up under the request's tenant. The
// user quota is consumed here, inside the store transaction.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	t, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password, a.deps.Config.BcryptCost)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.deps.Users.Register(r.Context(), user.Registration{
		TenantID:     t.ID,
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Phone:        req.Phone,
		ReferralCode: req.ReferralCode,
	}, hash)
	if err != nil {
		handleUserError(w, r, err)
		return
	}

	token, err := auth.IssueToken(u.ID, auth.RoleUser, t.ID, a.deps.Config.TokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.registered",
		zap.String("user_id", u.ID), zap.String("tenant_id", t.ID))
	a.sendMail(t.ID, u.Email, "welcome", map[string]string{
		"name":          u.FullName,
		"tenant":        t.CompanyName,
		"referral_code": u.ReferralCode,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":       u,
		"token":      token,
		"expires_at": time.Now().UTC().Add(a.deps.Config.TokenTTL),
	})
}

type createTenantRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone"`
	PlanID      string `json:"plan_id"`
	Subdomain   string `json:"subdomain"`
}

func (a *API) handleTenantsCollection(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, auth.RoleRoot); !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.createTenant(w, r)
	case http.MethodGet:
		tenants, err := a.deps.Tenants.ListTenants(r.Context())
		if err != nil {
			handleTenantError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	hash, err := auth.HashPassword(req.Password, a.deps.Config.BcryptCost)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	t, err := a.deps.Tenants.CreateTenant(r.Context(), tenant.Registration{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		CompanyName: req.CompanyName,
		Phone:       req.Phone,
		PlanID:      req.PlanID,
		Subdomain:   req.Subdomain,
	}, hash)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.created",
		zap.String("new_tenant_id", t.ID), zap.String("subdomain", t.Subdomain))
	a.sendMail("", t.Email, "tenant_welcome", map[string]string{
		"name":      t.FullName,
		"company":   t.CompanyName,
		"subdomain": t.Subdomain,
	})

	w.Header().Set("Location", "/v1/tenants/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	plans, err := a.deps.Tenants.ListPlans(r.Context())
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": plans})
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	users, err := a.deps.Users.ListUsers(r.Context(), actor.TenantID)
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

// --- shared plumbing ---

// allowLogin applies the stricter credential-endpoint rate limit.
func (a *API) allowLogin(w http.ResponseWriter, r *http.Request) bool {
	if !a.loginLimiter.allow(clientIP(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
		return false
	}
	return true
}

func (a *API) failedLogin(ctx context.Context, email string) {
	_ = audit.LogEvent(ctx, "auth.login_failed", zap.String("email", strings.TrimSpace(email)))
}

// sendMail delivers asynchronously after the business operation succeeded.
// Delivery failure is logged by the mailer; it never affects the response.
func (a *API) sendMail(tenantID, recipient, templateName string, vars map[string]string) {
	if a.deps.Mailer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = a.deps.Mailer.Send(ctx, tenantID, recipient, templateName, vars)
	}()
}

func handleTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenant.ErrEmailTaken), errors.Is(err, tenant.ErrSubdomainTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, user.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, quota.ErrExceeded):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, user.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, user.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
