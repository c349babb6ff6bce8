// Package tenant holds the tenant (operator) model: plans, subscription
// state, host-based resolution and usage counters.
package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("tenant: not found")
	ErrEmailTaken     = errors.New("tenant: email already exists")
	ErrSubdomainTaken = errors.New("tenant: subdomain already taken")
	ErrInvalidInput   = errors.New("tenant: invalid input")
)

// SubscriptionStatus is mutated by an external billing process; this core
// only reads it.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// Plan carries immutable per-version quota limits. A limit of Unlimited (-1)
// means the resource is not metered.
type Plan struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	UserLimit      int             `json:"user_limit"`
	ChallengeLimit int             `json:"challenge_limit"`
	PriceMonthly   decimal.Decimal `json:"price_monthly"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Tenant is an operator running a white-labeled instance under its own
// subdomain or custom domain.
type Tenant struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	CompanyName  string `json:"company_name"`
	Phone        string `json:"phone,omitempty"`
	Subdomain    string `json:"subdomain"`
	CustomDomain string `json:"custom_domain,omitempty"`
	Active       bool   `json:"is_active"`

	PlanID             string             `json:"plan_id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	SubscriptionStart  time.Time          `json:"subscription_start_date"`
	SubscriptionEnd    time.Time          `json:"subscription_end_date"`

	// Usage counters, mutated only by atomic increments on successful
	// creation (users) and publish (challenges).
	UsersCount     int `json:"users_count"`
	ChallengesUsed int `json:"challenges_used"`

	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registration is the payload the platform operator supplies when onboarding
// a new tenant.
type Registration struct {
	Email       string
	Password    string
	FullName    string
	CompanyName string
	Phone       string
	PlanID      string
	Subdomain   string
}

// Store is the persistence surface the tenant module needs.
type Store interface {
	CreateTenant(ctx context.Context, reg Registration, passwordHash string) (*Tenant, error)
	TenantByID(ctx context.Context, id string) (*Tenant, error)
	TenantByEmail(ctx context.Context, email string) (*Tenant, error)
	TenantBySubdomain(ctx context.Context, label string) (*Tenant, error)
	TenantByDomain(ctx context.Context, host string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	PlanByID(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)
}
