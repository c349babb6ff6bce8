package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk.io/internal/quota"
)

func seedTenant(t *testing.T, store *InMemory, subdomain, domain string) *Tenant {
	t.Helper()
	plan := store.AddPlan(Plan{Name: "starter", UserLimit: quota.Unlimited, ChallengeLimit: quota.Unlimited})
	created, err := store.CreateTenant(context.Background(), Registration{
		Email:       subdomain + "@example.com",
		Password:    "x",
		CompanyName: subdomain + " inc",
		PlanID:      plan.ID,
		Subdomain:   subdomain,
	}, "hash")
	require.NoError(t, err)
	if domain != "" {
		store.Mutate(created.ID, func(tn *Tenant) { tn.CustomDomain = domain })
	}
	return created
}

func TestResolveBySubdomain(t *testing.T) {
	store := NewInMemory()
	created := seedTenant(t, store, "acme", "")
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), "acme.propdesk.io:8080")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}

func TestResolveByCustomDomain(t *testing.T) {
	store := NewInMemory()
	created := seedTenant(t, store, "acme", "trade.acme-funding.com")
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), "trade.acme-funding.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}

func TestResolveSubdomainWinsOverDomain(t *testing.T) {
	store := NewInMemory()
	bySub := seedTenant(t, store, "apex", "")
	// A second tenant claims the full host as a custom domain.
	seedTenant(t, store, "other", "apex.propdesk.io")
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), "apex.propdesk.io")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, bySub.ID, got.ID)
}

func TestResolveMissIsNotAnError(t *testing.T) {
	store := NewInMemory()
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), "unknown.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveSkipsInactiveTenants(t *testing.T) {
	store := NewInMemory()
	created := seedTenant(t, store, "gone", "")
	store.Mutate(created.ID, func(tn *Tenant) { tn.Active = false })
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), "gone.propdesk.io")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCheckSubscription(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	active := &Tenant{SubscriptionStatus: SubscriptionActive, SubscriptionEnd: now.AddDate(0, 1, 0)}
	adv, err := CheckSubscription(active, now)
	require.NoError(t, err)
	assert.Nil(t, adv)

	expiring := &Tenant{SubscriptionStatus: SubscriptionActive, SubscriptionEnd: now.Add(5 * 24 * time.Hour)}
	adv, err = CheckSubscription(expiring, now)
	require.NoError(t, err, "an expiring subscription warns, it does not reject")
	require.NotNil(t, adv)
	assert.Equal(t, 5, adv.DaysRemaining)

	expired := &Tenant{SubscriptionStatus: SubscriptionExpired}
	_, err = CheckSubscription(expired, now)
	assert.ErrorIs(t, err, ErrSubscriptionExpired)

	suspended := &Tenant{SubscriptionStatus: SubscriptionSuspended}
	_, err = CheckSubscription(suspended, now)
	assert.ErrorIs(t, err, ErrSuspended)
}

func TestCreateTenantConflicts(t *testing.T) {
	store := NewInMemory()
	plan := store.AddPlan(Plan{Name: "starter", UserLimit: 10, ChallengeLimit: 2})

	_, err := store.CreateTenant(context.Background(), Registration{
		Email: "op@acme.com", Password: "x", CompanyName: "Acme", PlanID: plan.ID, Subdomain: "acme",
	}, "hash")
	require.NoError(t, err)

	_, err = store.CreateTenant(context.Background(), Registration{
		Email: "op@acme.com", Password: "x", CompanyName: "Other", PlanID: plan.ID, Subdomain: "other",
	}, "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = store.CreateTenant(context.Background(), Registration{
		Email: "two@acme.com", Password: "x", CompanyName: "Other", PlanID: plan.ID, Subdomain: "acme",
	}, "hash")
	assert.ErrorIs(t, err, ErrSubdomainTaken)
}
