package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"propdesk.io/internal/auth"
	"propdesk.io/internal/tenant"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/plans",
	"/",
}

var publicPrefixes = []string{
	"/v1/auth/",
	"/v1/storefront/",
	"/certificates/",
}

// withAuth verifies the bearer token on protected paths and stores the actor
// in the context. A missing credential and an invalid one produce distinct
// 401 messages.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := auth.VerifyToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithActor(r.Context(), claims.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole enforces exact role membership. Roles are flat: root does not
// satisfy an admin requirement.
func requireRole(w http.ResponseWriter, r *http.Request, allowed ...auth.Role) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Actor{}, false
	}
	if !actor.Role.In(allowed...) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return auth.Actor{}, false
	}
	return actor, true
}

// checkSubscription gates tenant-admin writes on live subscription state and
// returns a renewal advisory when the end date is near.
func (a *API) checkSubscription(ctx context.Context, tenantID string) (*tenant.Advisory, error) {
	t, err := a.deps.Tenants.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tenant.CheckSubscription(t, time.Now().UTC())
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
