package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"propdesk.io/internal/ids"
	"propdesk.io/internal/order"
)

const orderColumns = `
	id, tenant_id, user_id, challenge_id, final_price, payment_status, completed_at, created_at`

func (s *Store) Place(ctx context.Context, p order.Placement) (*order.Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o := &order.Order{
		ID:            ids.New(),
		TenantID:      p.TenantID,
		UserID:        p.UserID,
		ChallengeID:   p.ChallengeID,
		FinalPrice:    p.FinalPrice,
		PaymentStatus: order.PaymentPending,
		CreatedAt:     now,
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into orders(id, tenant_id, user_id, challenge_id, final_price, payment_status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, o.ID, o.TenantID, o.UserID, o.ChallengeID, o.FinalPrice, o.PaymentStatus, now); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) Settle(ctx context.Context, tenantID, id string, status order.PaymentStatus) (*order.Order, error) {
	if status != order.PaymentCompleted && status != order.PaymentFailed {
		return nil, order.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		select `+orderColumns+` from orders where tenant_id=$1 and id=$2 for update
	`, tenantID, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != order.PaymentPending {
		return nil, order.ErrNotPending
	}

	now := time.Now().UTC()
	o.PaymentStatus = status
	if status == order.PaymentCompleted {
		o.CompletedAt = &now
	}
	if _, err := tx.ExecContext(ctx, `
		update orders set payment_status=$3, completed_at=$4 where tenant_id=$1 and id=$2
	`, tenantID, id, o.PaymentStatus, o.CompletedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) OrderByID(ctx context.Context, tenantID, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+orderColumns+` from orders where tenant_id=$1 and id=$2
	`, tenantID, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	return o, err
}

func (s *Store) ListByUser(ctx context.Context, tenantID, userID string) ([]order.Order, error) {
	return s.listOrders(ctx, `tenant_id=$1 and user_id=$2`, tenantID, userID)
}

func (s *Store) ListByChallenge(ctx context.Context, tenantID, challengeID string) ([]order.Order, error) {
	return s.listOrders(ctx, `tenant_id=$1 and challenge_id=$2`, tenantID, challengeID)
}

func (s *Store) listOrders(ctx context.Context, where string, args ...any) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+orderColumns+` from orders where `+where+` order by created_at desc
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOrder(r rowScanner) (*order.Order, error) {
	var o order.Order
	var completed sql.NullTime
	err := r.Scan(
		&o.ID, &o.TenantID, &o.UserID, &o.ChallengeID,
		&o.FinalPrice, &o.PaymentStatus, &completed, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		at := completed.Time
		o.CompletedAt = &at
	}
	return &o, nil
}
