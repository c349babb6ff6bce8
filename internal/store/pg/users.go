package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"propdesk.io/internal/ids"
	"propdesk.io/internal/quota"
	"propdesk.io/internal/user"
)

const userColumns = `
	id, tenant_id, email, full_name, coalesce(phone,''), is_active,
	referral_code, coalesce(referred_by_user_id,''), password_hash, created_at, updated_at`

// Register performs the quota check, the insert and the users_count
// increment under a lock on the tenant row, so concurrent signups cannot
// oversubscribe the plan.
func (s *Store) Register(ctx context.Context, reg user.Registration, passwordHash string) (*user.User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(reg.Email))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var userLimit, usersCount int
	err = tx.QueryRowContext(ctx, `
		select p.user_limit, t.users_count
		from tenants t join plans p on p.id = t.plan_id
		where t.id=$1
		for update of t
	`, reg.TenantID).Scan(&userLimit, &usersCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := quota.Check(quota.ResourceUsers, userLimit, usersCount); err != nil {
		return nil, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		select exists(select 1 from users where tenant_id=$1 and email=$2)
	`, reg.TenantID, email).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, user.ErrEmailTaken
	}

	// Unknown referral codes are ignored rather than rejected.
	var referredBy string
	if code := strings.TrimSpace(reg.ReferralCode); code != "" {
		err := tx.QueryRowContext(ctx, `
			select id from users where tenant_id=$1 and referral_code=$2
		`, reg.TenantID, code).Scan(&referredBy)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:           ids.New(),
		TenantID:     reg.TenantID,
		Email:        email,
		FullName:     strings.TrimSpace(reg.FullName),
		Phone:        strings.TrimSpace(reg.Phone),
		Active:       true,
		ReferralCode: user.NewReferralCode(reg.FullName, now),
		ReferredBy:   referredBy,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into users(
			id, tenant_id, email, full_name, phone, is_active,
			referral_code, referred_by_user_id, password_hash, created_at, updated_at)
		values ($1,$2,$3,$4,nullif($5,''),true,$6,nullif($7,''),$8,$9,$9)
	`, u.ID, u.TenantID, u.Email, u.FullName, u.Phone,
		u.ReferralCode, u.ReferredBy, u.PasswordHash, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		update tenants set users_count = users_count + 1, updated_at = now() where id=$1
	`, u.TenantID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, tenantID, id string) (*user.User, error) {
	return s.userWhere(ctx, `tenant_id=$1 and id=$2`, tenantID, id)
}

func (s *Store) UserByEmail(ctx context.Context, tenantID, email string) (*user.User, error) {
	return s.userWhere(ctx, `tenant_id=$1 and email=$2`, tenantID, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) userWhere(ctx context.Context, where string, args ...any) (*user.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+where, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, tenantID string) ([]*user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users where tenant_id=$1 order by created_at desc
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(r rowScanner) (*user.User, error) {
	var u user.User
	err := r.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.Phone, &u.Active,
		&u.ReferralCode, &u.ReferredBy, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
