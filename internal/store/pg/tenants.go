package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"propdesk.io/internal/ids"
	"propdesk.io/internal/tenant"
)

const tenantColumns = `
	id, email, full_name, company_name, coalesce(phone,''),
	subdomain, coalesce(custom_domain,''), is_active,
	plan_id, subscription_status, subscription_start_date, subscription_end_date,
	users_count, challenges_used, password_hash, created_at, updated_at`

func (s *Store) CreateTenant(ctx context.Context, reg tenant.Registration, passwordHash string) (*tenant.Tenant, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	sub := strings.ToLower(strings.TrimSpace(reg.Subdomain))
	if email == "" || sub == "" || reg.PlanID == "" {
		return nil, tenant.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from tenants where email=$1)`, email).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, tenant.ErrEmailTaken
	}
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from tenants where subdomain=$1)`, sub).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, tenant.ErrSubdomainTaken
	}
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from plans where id=$1)`, reg.PlanID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, tenant.ErrInvalidInput
	}

	now := time.Now().UTC()
	t := &tenant.Tenant{
		ID:                 ids.New(),
		Email:              email,
		FullName:           strings.TrimSpace(reg.FullName),
		CompanyName:        strings.TrimSpace(reg.CompanyName),
		Phone:              strings.TrimSpace(reg.Phone),
		Subdomain:          sub,
		Active:             true,
		PlanID:             reg.PlanID,
		SubscriptionStatus: tenant.SubscriptionActive,
		SubscriptionStart:  now,
		SubscriptionEnd:    now.AddDate(0, 1, 0),
		PasswordHash:       passwordHash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into tenants(
			id, email, full_name, company_name, phone, subdomain, is_active,
			plan_id, subscription_status, subscription_start_date, subscription_end_date,
			users_count, challenges_used, password_hash, created_at, updated_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,true,$7,$8,$9,$10,0,0,$11,$12,$12)
	`, t.ID, t.Email, t.FullName, t.CompanyName, t.Phone, t.Subdomain,
		t.PlanID, t.SubscriptionStatus, t.SubscriptionStart, t.SubscriptionEnd,
		t.PasswordHash, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) TenantByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.tenantWhere(ctx, `id=$1`, id)
}

func (s *Store) TenantByEmail(ctx context.Context, email string) (*tenant.Tenant, error) {
	return s.tenantWhere(ctx, `email=$1`, strings.ToLower(strings.TrimSpace(email)))
}

// Resolution queries only match active tenants: a deactivated tenant's hosts
// stop resolving.
func (s *Store) TenantBySubdomain(ctx context.Context, label string) (*tenant.Tenant, error) {
	return s.tenantWhere(ctx, `subdomain=$1 and is_active`, strings.ToLower(label))
}

func (s *Store) TenantByDomain(ctx context.Context, host string) (*tenant.Tenant, error) {
	return s.tenantWhere(ctx, `custom_domain=$1 and is_active`, strings.ToLower(host))
}

func (s *Store) tenantWhere(ctx context.Context, where string, arg any) (*tenant.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where `+where, arg)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `select `+tenantColumns+` from tenants order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) PlanByID(ctx context.Context, id string) (*tenant.Plan, error) {
	var p tenant.Plan
	err := s.db.QueryRowContext(ctx, `
		select id, name, user_limit, challenge_limit, price_monthly, created_at
		from plans where id=$1
	`, id).Scan(&p.ID, &p.Name, &p.UserLimit, &p.ChallengeLimit, &p.PriceMonthly, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]*tenant.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, user_limit, challenge_limit, price_monthly, created_at
		from plans order by price_monthly asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tenant.Plan
	for rows.Next() {
		var p tenant.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.UserLimit, &p.ChallengeLimit, &p.PriceMonthly, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(r rowScanner) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.Scan(
		&t.ID, &t.Email, &t.FullName, &t.CompanyName, &t.Phone,
		&t.Subdomain, &t.CustomDomain, &t.Active,
		&t.PlanID, &t.SubscriptionStatus, &t.SubscriptionStart, &t.SubscriptionEnd,
		&t.UsersCount, &t.ChallengesUsed, &t.PasswordHash, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
