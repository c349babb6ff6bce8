// Package httpapi is the HTTP transport: routing, authentication, tenant
// resolution and translation of domain errors into status codes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"propdesk.io/internal/certificate"
	"propdesk.io/internal/challenge"
	"propdesk.io/internal/config"
	"propdesk.io/internal/notify"
	"propdesk.io/internal/obs"
	"propdesk.io/internal/order"
	"propdesk.io/internal/tenant"
	"propdesk.io/internal/ticket"
	"propdesk.io/internal/user"
)

// ReadyProbe reports whether the API's backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// CertificateStore persists and lists rendered certificate artifacts.
type CertificateStore interface {
	CreateCertificate(ctx context.Context, c *certificate.Certificate) error
	CertificatesByUser(ctx context.Context, tenantID, userID string) ([]certificate.Certificate, error)
}

// Deps bundles everything the transport needs. Mailer and Certificates are
// optional; endpoints depending on them degrade gracefully when nil.
type Deps struct {
	Tenants      tenant.Store
	Users        user.Store
	Challenges   challenge.Service
	Tickets      ticket.Service
	Orders       order.Store
	Mailer       *notify.Mailer
	Certificates CertificateStore
	ReadyProbe   ReadyProbe
	Config       config.Config
	Version      string
}

type API struct {
	mux  *http.ServeMux
	deps Deps

	resolver     *tenant.Resolver
	loginLimiter *ipLimiter
}

func New(deps Deps) *API {
	a := &API{
		mux:  http.NewServeMux(),
		deps: deps,

		resolver: tenant.NewResolver(deps.Tenants),
		// Credential endpoints get a deliberately small bucket.
		loginLimiter: newIPLimiter(5, 1),
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleUserLogin)
	a.mux.HandleFunc("/v1/auth/admin/login", a.handleAdminLogin)
	a.mux.HandleFunc("/v1/auth/root/login", a.handleRootLogin)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)

	a.mux.HandleFunc("/v1/plans", a.handlePlans)
	a.mux.HandleFunc("/v1/tenants", a.handleTenantsCollection)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)

	a.mux.HandleFunc("/v1/challenges", a.handleChallengesCollection)
	a.mux.HandleFunc("/v1/challenges/", a.handleChallengeResource)
	a.mux.HandleFunc("/v1/storefront/challenges", a.handleStorefront)

	a.mux.HandleFunc("/v1/tickets", a.handleTicketsCollection)
	a.mux.HandleFunc("/v1/tickets/stats", a.handleTicketStats)
	a.mux.HandleFunc("/v1/tickets/", a.handleTicketResource)

	a.mux.HandleFunc("/v1/orders", a.handleOrdersCollection)
	a.mux.HandleFunc("/v1/orders/", a.handleOrderResource)

	if deps.Config.CertificatesDir != "" {
		a.mux.Handle("/certificates/",
			http.StripPrefix("/certificates/", http.FileServer(http.Dir(deps.Config.CertificatesDir))))
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = a.withTenant(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.deps.Config.RateBurst, a.deps.Config.RatePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
