package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"propdesk.io/internal/auth"
	"propdesk.io/internal/certificate"
	"propdesk.io/internal/challenge"
	"propdesk.io/internal/config"
	"propdesk.io/internal/order"
	"propdesk.io/internal/tenant"
	"propdesk.io/internal/ticket"
	"propdesk.io/internal/user"
)

const (
	testHost      = "acme.example.com"
	adminEmail    = "op@acme.com"
	adminPassword = "operator-secret"
)

type fakeCertStore struct {
	mu    sync.Mutex
	certs []certificate.Certificate
}

func (s *fakeCertStore) CreateCertificate(ctx context.Context, c *certificate.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = fmt.Sprintf("cert-%d", len(s.certs)+1)
	c.GeneratedAt = time.Now().UTC()
	s.certs = append(s.certs, *c)
	return nil
}

func (s *fakeCertStore) CertificatesByUser(ctx context.Context, tenantID, userID string) ([]certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []certificate.Certificate
	for _, c := range s.certs {
		if c.TenantID == tenantID && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type testEnv struct {
	srv     *httptest.Server
	tenants *tenant.InMemory
	certs   *fakeCertStore

	tenantID string
	planID   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("PROPDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	tenants := tenant.NewInMemory()
	plan := tenants.AddPlan(tenant.Plan{Name: "starter", UserLimit: 5, ChallengeLimit: 1})

	hash, err := auth.HashPassword(adminPassword, 4)
	require.NoError(t, err)
	tn, err := tenants.CreateTenant(context.Background(), tenant.Registration{
		Email: adminEmail, Password: adminPassword, FullName: "Ada Operator",
		CompanyName: "Acme Funding", PlanID: plan.ID, Subdomain: "acme",
	}, hash)
	require.NoError(t, err)

	challenges := challenge.NewInMemory(tenants)
	certs := &fakeCertStore{}
	api := New(Deps{
		Tenants:      tenants,
		Users:        user.NewInMemory(tenants),
		Challenges:   challenges,
		Tickets:      ticket.NewInMemory(),
		Orders:       order.NewInMemory(challenges),
		Certificates: certs,
		Config: config.Config{
			TokenTTL:        time.Hour,
			BcryptCost:      4,
			RateBurst:       200,
			RatePerSec:      200,
			CertificatesDir: t.TempDir(),
		},
		Version: "test",
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, tenants: tenants, certs: certs, tenantID: tn.ID, planID: plan.ID}
}

// do issues a request against the test server. host overrides the Host
// header so tenant resolution can be exercised; token goes into the
// Authorization header when set.
func (e *testEnv) do(t *testing.T, method, path, host, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if host != "" {
		req.Host = host
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func (e *testEnv) registerUser(t *testing.T, email string) (id, token string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/auth/register", testHost, "", map[string]any{
		"email": email, "password": "secretpass1", "full_name": "Uma User",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	u := body["user"].(map[string]any)
	return u["id"].(string), body["token"].(string)
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/auth/admin/login", "", "", map[string]any{
		"email": adminEmail, "password": adminPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["token"].(string)
}

func (e *testEnv) rootToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueToken("root", auth.RoleRoot, "", time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) createChallenge(t *testing.T, token, name string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/challenges", "", token, map[string]any{
		"challenge_name": name,
		"challenge_type": "two_phase",
		"account_size":   "100000",
		"entry_fee":      "499.99",
		"leverage":       "1:100",
		"currency":       "USD",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func TestRegisterAndLoginOnTenantHost(t *testing.T) {
	env := newTestEnv(t)

	_, token := env.registerUser(t, "uma@example.com")
	require.NotEmpty(t, token)

	// Same credentials, correct host.
	resp, body := env.do(t, http.MethodPost, "/v1/auth/login", testHost, "", map[string]any{
		"email": "uma@example.com", "password": "secretpass1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["token"])

	// Unknown host cannot resolve a tenant, so login has nowhere to look.
	resp, _ = env.do(t, http.MethodPost, "/v1/auth/login", "nosuch.example.com", "", map[string]any{
		"email": "uma@example.com", "password": "secretpass1",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Wrong password.
	resp, _ = env.do(t, http.MethodPost, "/v1/auth/login", testHost, "", map[string]any{
		"email": "uma@example.com", "password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthGates(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.registerUser(t, "uma@example.com")

	// No token.
	resp, _ := env.do(t, http.MethodGet, "/v1/challenges", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	resp, _ = env.do(t, http.MethodGet, "/v1/challenges", "", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token, wrong role.
	resp, _ = env.do(t, http.MethodGet, "/v1/challenges", "", userToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Public endpoints stay open.
	resp, _ = env.do(t, http.MethodGet, "/v1/plans", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChallengeLifecycleAndQuota(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	first := env.createChallenge(t, admin, "Evaluation 100K")
	second := env.createChallenge(t, admin, "Evaluation 50K")

	resp, _ := env.do(t, http.MethodPost, "/v1/challenges/"+first+"/publish", "", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Plan allows one published challenge.
	resp, _ = env.do(t, http.MethodPost, "/v1/challenges/"+second+"/publish", "", admin, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Publishing is draft-only, even for the already published one.
	resp, _ = env.do(t, http.MethodPost, "/v1/challenges/"+first+"/publish", "", admin, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// The storefront shows only the published challenge, without a token.
	resp, body := env.do(t, http.MethodGet, "/v1/storefront/challenges", testHost, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, "Evaluation 100K", items[0].(map[string]any)["challenge_name"])
}

func TestExpiredSubscriptionBlocksAdminWrites(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	require.True(t, env.tenants.Mutate(env.tenantID, func(tn *tenant.Tenant) {
		tn.SubscriptionStatus = tenant.SubscriptionExpired
	}))

	resp, _ := env.do(t, http.MethodPost, "/v1/challenges", "", admin, map[string]any{
		"challenge_name": "Blocked", "challenge_type": "two_phase",
		"account_size": "100000", "entry_fee": "499.99",
		"leverage": "1:100", "currency": "USD",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Reads stay available.
	resp, _ = env.do(t, http.MethodGet, "/v1/challenges", "", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Fresh admin logins are rejected outright.
	resp, _ = env.do(t, http.MethodPost, "/v1/auth/admin/login", "", "", map[string]any{
		"email": adminEmail, "password": adminPassword,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOrderPurchaseSettlementAndCertificate(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)
	userID, userToken := env.registerUser(t, "uma@example.com")

	chID := env.createChallenge(t, admin, "Evaluation 100K")
	resp, _ := env.do(t, http.MethodPost, "/v1/challenges/"+chID+"/publish", "", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Purchase captures the entry fee at placement time.
	resp, body := env.do(t, http.MethodPost, "/v1/orders", "", userToken, map[string]any{"challenge_id": chID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID := body["id"].(string)
	require.Equal(t, "pending", body["payment_status"])
	require.Equal(t, "499.99", body["final_price"])

	// A challenge with orders cannot be deleted, whatever the order state.
	resp, _ = env.do(t, http.MethodDelete, "/v1/challenges/"+chID, "", admin, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/orders/"+orderID+"/complete", "", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "completed", body["payment_status"])

	// Settlement is one-shot.
	resp, _ = env.do(t, http.MethodPost, "/v1/orders/"+orderID+"/complete", "", admin, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Completion issued a certificate for the buyer.
	resp, body = env.do(t, http.MethodGet, "/v1/orders/certificates", "", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	certs := body["items"].([]any)
	require.Len(t, certs, 1)
	cert := certs[0].(map[string]any)
	require.Equal(t, userID, cert["user_id"])
	require.Equal(t, orderID, cert["order_id"])
	require.Contains(t, cert["certificate_url"], "/certificates/CERT-")
}

func TestDraftChallengeIsNotPurchasable(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)
	_, userToken := env.registerUser(t, "uma@example.com")

	chID := env.createChallenge(t, admin, "Hidden Draft")
	resp, _ := env.do(t, http.MethodPost, "/v1/orders", "", userToken, map[string]any{"challenge_id": chID})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTicketConversationHidesInternalNotes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)
	_, userToken := env.registerUser(t, "uma@example.com")

	resp, body := env.do(t, http.MethodPost, "/v1/tickets", "", userToken, map[string]any{
		"subject": "Withdrawal stuck", "message": "My payout has not arrived.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticketID := body["id"].(string)
	require.Equal(t, "open", body["status"])

	// Admin replies with an internal note the user must never see.
	resp, _ = env.do(t, http.MethodPost, "/v1/tickets/"+ticketID+"/messages", "", admin, map[string]any{
		"message": "Check the payment provider logs.", "is_internal_note": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/tickets/"+ticketID, "", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "My payout has not arrived.", msgs[0].(map[string]any)["message"])
	// The appended message moved the ticket along.
	require.Equal(t, "in_progress", body["ticket"].(map[string]any)["status"])

	// Admin sees the full conversation.
	resp, body = env.do(t, http.MethodGet, "/v1/tickets/"+ticketID, "", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["messages"].([]any), 2)

	// Users cannot change status.
	resp, _ = env.do(t, http.MethodPost, "/v1/tickets/"+ticketID+"/status", "", userToken, map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/tickets/"+ticketID+"/status", "", admin, map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["resolved_at"])
}

func TestRootManagesTenants(t *testing.T) {
	env := newTestEnv(t)
	root := env.rootToken(t)

	resp, body := env.do(t, http.MethodPost, "/v1/tenants", "", root, map[string]any{
		"email": "op@rival.com", "password": "rival-secret",
		"full_name": "Rex Rival", "company_name": "Rival Prop",
		"plan_id": env.planID, "subdomain": "rival",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "rival", body["subdomain"])

	// Duplicate subdomain conflicts.
	resp, _ = env.do(t, http.MethodPost, "/v1/tenants", "", root, map[string]any{
		"email": "other@rival.com", "password": "rival-secret",
		"full_name": "Rex Rival", "company_name": "Rival Prop",
		"plan_id": env.planID, "subdomain": "rival",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/tenants", "", root, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["items"].([]any), 2)

	// Admins cannot reach the tenant registry.
	admin := env.adminToken(t)
	resp, _ = env.do(t, http.MethodGet, "/v1/tenants", "", admin, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t)

	var sawTooMany bool
	for i := 0; i < 10; i++ {
		resp, _ := env.do(t, http.MethodPost, "/v1/auth/admin/login", "", "", map[string]any{
			"email": "nobody@example.com", "password": "wrong",
		})
		if resp.StatusCode == http.StatusTooManyRequests {
			require.Equal(t, "1", resp.Header.Get("Retry-After"))
			sawTooMany = true
			break
		}
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	require.True(t, sawTooMany, "burst of bad logins never hit the limiter")
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-me-123")
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "trace-me-123", resp.Header.Get("X-Request-ID"))

	resp2, _ := env.do(t, http.MethodGet, "/healthz", "", "", nil)
	require.NotEmpty(t, resp2.Header.Get("X-Request-ID"))
}
