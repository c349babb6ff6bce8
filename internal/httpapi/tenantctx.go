package httpapi

import (
	"context"
	"net/http"

	"propdesk.io/internal/tenant"
)

const tenantKey ctxKey = "request_tenant"

// withTenant resolves the request host to a tenant and stores it in the
// context. A miss is not an error here; handlers that need a tenant reject
// its absence themselves.
func (a *API) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := a.resolver.Resolve(r.Context(), r.Host)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "tenant resolution failed")
			return
		}
		if t != nil {
			r = r.WithContext(context.WithValue(r.Context(), tenantKey, t))
		}
		next.ServeHTTP(w, r)
	})
}

// TenantFromContext returns the tenant the request host resolved to, if any.
func TenantFromContext(ctx context.Context) (*tenant.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*tenant.Tenant)
	return t, ok && t != nil
}

// requireTenant is for endpoints that only exist on a tenant host.
func requireTenant(w http.ResponseWriter, r *http.Request) (*tenant.Tenant, bool) {
	t, ok := TenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown tenant host")
		return nil, false
	}
	return t, true
}
