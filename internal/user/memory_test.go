package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdesk.io/internal/quota"
	"propdesk.io/internal/tenant"
)

func newFixture(t *testing.T, userLimit int) (*InMemory, *tenant.Tenant) {
	t.Helper()
	tenants := tenant.NewInMemory()
	plan := tenants.AddPlan(tenant.Plan{Name: "starter", UserLimit: userLimit, ChallengeLimit: quota.Unlimited})
	tn, err := tenants.CreateTenant(context.Background(), tenant.Registration{
		Email: "op@acme.com", Password: "x", CompanyName: "Acme", PlanID: plan.ID, Subdomain: "acme",
	}, "hash")
	require.NoError(t, err)
	return NewInMemory(tenants), tn
}

func reg(tenantID, email, name string) Registration {
	return Registration{TenantID: tenantID, Email: email, Password: "longenough", FullName: name}
}

func TestRegisterAssignsReferralCode(t *testing.T) {
	users, tn := newFixture(t, quota.Unlimited)

	u, err := users.Register(context.Background(), reg(tn.ID, "jane@x.com", "Jane Doe"), "hash")
	require.NoError(t, err)
	assert.Len(t, u.ReferralCode, 9)
	assert.Equal(t, "JAN", u.ReferralCode[:3])
	assert.True(t, u.Active)
}

func TestRegisterResolvesReferrer(t *testing.T) {
	users, tn := newFixture(t, quota.Unlimited)
	ctx := context.Background()

	referrer, err := users.Register(ctx, reg(tn.ID, "ref@x.com", "Ref Errer"), "hash")
	require.NoError(t, err)

	in := reg(tn.ID, "new@x.com", "New Comer")
	in.ReferralCode = referrer.ReferralCode
	referred, err := users.Register(ctx, in, "hash")
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, referred.ReferredBy)

	// Unknown codes register without attribution.
	in = reg(tn.ID, "other@x.com", "Other One")
	in.ReferralCode = "NOPE00"
	u, err := users.Register(ctx, in, "hash")
	require.NoError(t, err)
	assert.Empty(t, u.ReferredBy)
}

func TestRegisterEnforcesUserQuota(t *testing.T) {
	users, tn := newFixture(t, 2)
	ctx := context.Background()

	_, err := users.Register(ctx, reg(tn.ID, "a@x.com", "A A"), "hash")
	require.NoError(t, err)
	_, err = users.Register(ctx, reg(tn.ID, "b@x.com", "B B"), "hash")
	require.NoError(t, err)

	_, err = users.Register(ctx, reg(tn.ID, "c@x.com", "C C"), "hash")
	assert.ErrorIs(t, err, quota.ErrExceeded)
}

func TestRegisterDuplicateEmailScopedToTenant(t *testing.T) {
	users, tn := newFixture(t, quota.Unlimited)
	ctx := context.Background()

	_, err := users.Register(ctx, reg(tn.ID, "dup@x.com", "Dup One"), "hash")
	require.NoError(t, err)
	_, err = users.Register(ctx, reg(tn.ID, "dup@x.com", "Dup Two"), "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestNewReferralCodePadsShortNames(t *testing.T) {
	code := NewReferralCode("Al", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Len(t, code, 9)
	assert.Equal(t, "ALX", code[:3])
}
