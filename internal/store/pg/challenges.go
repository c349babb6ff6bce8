package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"propdesk.io/internal/challenge"
	"propdesk.io/internal/ids"
	"propdesk.io/internal/quota"
)

const challengeColumns = `
	id, tenant_id, challenge_name, challenge_type, account_size, entry_fee,
	coalesce(leverage,''), coalesce(currency,''), is_refundable, status, created_at, updated_at`

// Sales annotations count completed orders only; pending and failed payments
// are invisible to revenue.
const summaryColumns = challengeColumns + `,
	(select count(*) from orders o where o.challenge_id = c.id and o.payment_status = 'completed'),
	(select coalesce(sum(o.final_price), 0) from orders o where o.challenge_id = c.id and o.payment_status = 'completed')`

func (s *Store) Create(ctx context.Context, tenantID string, d challenge.Draft) (*challenge.Challenge, error) {
	if err := challenge.ValidateDraft(d); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	c := &challenge.Challenge{
		Header: challenge.Header{
			ID:          ids.New(),
			TenantID:    tenantID,
			Name:        strings.TrimSpace(d.Name),
			Type:        d.Type,
			AccountSize: d.AccountSize,
			EntryFee:    d.EntryFee,
			Leverage:    d.Leverage,
			Currency:    d.Currency,
			Refundable:  d.Refundable,
			Status:      challenge.StatusDraft,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Sections:     d.Sections,
		Restrictions: d.Restrictions.WithDefaults(),
		Segments:     d.Segments,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into challenges(
			id, tenant_id, challenge_name, challenge_type, account_size, entry_fee,
			leverage, currency, is_refundable, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10,$11,$11)
	`, c.ID, c.TenantID, c.Name, c.Type, c.AccountSize, c.EntryFee,
		c.Leverage, c.Currency, c.Refundable, c.Status, now); err != nil {
		return nil, err
	}
	if err := insertChildren(ctx, tx, c.ID, c.Sections, c.Restrictions, c.Segments); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, tenantID, id string) (*challenge.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+challengeColumns+` from challenges where tenant_id=$1 and id=$2
	`, tenantID, id)
	h, err := scanHeader(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c := &challenge.Challenge{Header: *h}
	if c.Sections, err = s.loadSections(ctx, id); err != nil {
		return nil, err
	}
	if c.Restrictions, err = s.loadRestrictions(ctx, id); err != nil {
		return nil, err
	}
	if c.Segments, err = s.loadSegments(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) List(ctx context.Context, tenantID string, f challenge.ListFilter) ([]challenge.Summary, error) {
	q := `select ` + summaryColumns + ` from challenges c where c.tenant_id=$1`
	args := []any{tenantID}
	if f.Status != "" {
		q += ` and c.status=$2`
		args = append(args, f.Status)
	}
	q += ` order by c.created_at desc`
	return s.querySummaries(ctx, q, args...)
}

func (s *Store) ListPublished(ctx context.Context, tenantID string) ([]challenge.Summary, error) {
	return s.List(ctx, tenantID, challenge.ListFilter{Status: challenge.StatusPublished})
}

func (s *Store) Update(ctx context.Context, tenantID, id string, u challenge.Update) (*challenge.Challenge, error) {
	if err := challenge.ValidateUpdate(u); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	h, err := lockHeader(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	h.Name = strings.TrimSpace(u.Name)
	h.AccountSize = u.AccountSize
	h.EntryFee = u.EntryFee
	h.Leverage = u.Leverage
	h.Currency = u.Currency
	h.Refundable = u.Refundable
	h.UpdatedAt = now
	if _, err := tx.ExecContext(ctx, `
		update challenges set
			challenge_name=$3, account_size=$4, entry_fee=$5,
			leverage=nullif($6,''), currency=nullif($7,''), is_refundable=$8, updated_at=$9
		where tenant_id=$1 and id=$2
	`, tenantID, id, h.Name, h.AccountSize, h.EntryFee, h.Leverage, h.Currency, h.Refundable, now); err != nil {
		return nil, err
	}

	// Full-replace semantics: sections, restrictions and segments are
	// rewritten wholesale.
	if err := deleteChildren(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := insertChildren(ctx, tx, id, u.Sections, u.Restrictions, u.Segments); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &challenge.Challenge{
		Header:       *h,
		Sections:     u.Sections,
		Restrictions: u.Restrictions,
		Segments:     u.Segments,
	}, nil
}

func (s *Store) Publish(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	h, err := lockHeader(ctx, tx, tenantID, id)
	if err != nil {
		return err
	}
	if h.Status != challenge.StatusDraft {
		return challenge.ErrInvalidTransition
	}

	var limit, used int
	err = tx.QueryRowContext(ctx, `
		select p.challenge_limit, t.challenges_used
		from tenants t join plans p on p.id = t.plan_id
		where t.id=$1
		for update of t
	`, tenantID).Scan(&limit, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return challenge.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := quota.Check(quota.ResourceChallenges, limit, used); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		update challenges set status=$3, updated_at=now() where tenant_id=$1 and id=$2
	`, tenantID, id, challenge.StatusPublished); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update tenants set challenges_used = challenges_used + 1, updated_at = now() where id=$1
	`, tenantID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Duplicate(ctx context.Context, tenantID, id string) (*challenge.Challenge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	src, err := lockHeader(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	sections, err := loadSectionsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	restrictions, err := loadRestrictionsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	segments, err := loadSegmentsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cp := &challenge.Challenge{
		Header:       *src,
		Sections:     sections,
		Restrictions: restrictions,
		Segments:     segments,
	}
	cp.ID = ids.New()
	cp.Name = src.Name + challenge.CopySuffix
	cp.Status = challenge.StatusDraft
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		insert into challenges(
			id, tenant_id, challenge_name, challenge_type, account_size, entry_fee,
			leverage, currency, is_refundable, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10,$11,$11)
	`, cp.ID, cp.TenantID, cp.Name, cp.Type, cp.AccountSize, cp.EntryFee,
		cp.Leverage, cp.Currency, cp.Refundable, cp.Status, now); err != nil {
		return nil, err
	}
	if err := insertChildren(ctx, tx, cp.ID, cp.Sections, cp.Restrictions, cp.Segments); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Store) Archive(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	h, err := lockHeader(ctx, tx, tenantID, id)
	if err != nil {
		return err
	}
	if !h.Status.CanArchive() {
		return challenge.ErrInvalidTransition
	}
	if _, err := tx.ExecContext(ctx, `
		update challenges set status=$3, updated_at=now() where tenant_id=$1 and id=$2
	`, tenantID, id, challenge.StatusArchived); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockHeader(ctx, tx, tenantID, id); err != nil {
		return err
	}

	// Orders of any payment status pin the challenge.
	var n int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from orders where challenge_id=$1
	`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return challenge.ErrHasOrders
	}

	if err := deleteChildren(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from challenges where id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- aggregate plumbing ---

func lockHeader(ctx context.Context, tx *sql.Tx, tenantID, id string) (*challenge.Header, error) {
	row := tx.QueryRowContext(ctx, `
		select `+challengeColumns+` from challenges where tenant_id=$1 and id=$2 for update
	`, tenantID, id)
	h, err := scanHeader(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, challenge.ErrNotFound
	}
	return h, err
}

func insertChildren(ctx context.Context, tx *sql.Tx, id string, sections []challenge.RuleSection, r challenge.Restrictions, segments []string) error {
	for _, sec := range sections {
		rules, err := json.Marshal(sec.Rules)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into challenge_rules_sections(id, challenge_id, section_name, section_order, rules)
			values ($1,$2,$3,$4,$5)
		`, ids.New(), id, sec.Name, sec.Order, rules); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		insert into challenge_restrictions(
			challenge_id, news_trading_allowed, scalping_allowed, hedging_allowed,
			martingale_allowed, ea_allowed, copy_trading_allowed, grid_allowed,
			arbitrage_allowed, overnight_holding_allowed, weekend_holding_allowed)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, id, r.NewsTrading, r.Scalping, r.Hedging, r.Martingale, r.ExpertAdvisors,
		r.CopyTrading, r.Grid, r.Arbitrage, r.OvernightHolding, r.WeekendHolding); err != nil {
		return err
	}
	for _, seg := range segments {
		if _, err := tx.ExecContext(ctx, `
			insert into challenge_segments(id, challenge_id, segment)
			values ($1,$2,$3)
		`, ids.New(), id, seg); err != nil {
			return err
		}
	}
	return nil
}

func deleteChildren(ctx context.Context, tx *sql.Tx, id string) error {
	for _, q := range []string{
		`delete from challenge_rules_sections where challenge_id=$1`,
		`delete from challenge_restrictions where challenge_id=$1`,
		`delete from challenge_segments where challenge_id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) loadSections(ctx context.Context, id string) ([]challenge.RuleSection, error) {
	return querySections(ctx, s.db, id)
}

func loadSectionsTx(ctx context.Context, tx *sql.Tx, id string) ([]challenge.RuleSection, error) {
	return querySections(ctx, tx, id)
}

func querySections(ctx context.Context, q querier, id string) ([]challenge.RuleSection, error) {
	rows, err := q.QueryContext(ctx, `
		select section_name, section_order, rules
		from challenge_rules_sections
		where challenge_id=$1
		order by section_order asc
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []challenge.RuleSection
	for rows.Next() {
		var sec challenge.RuleSection
		var raw []byte
		if err := rows.Scan(&sec.Name, &sec.Order, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &sec.Rules); err != nil {
				return nil, err
			}
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *Store) loadRestrictions(ctx context.Context, id string) (challenge.Restrictions, error) {
	return queryRestrictions(ctx, s.db, id)
}

func loadRestrictionsTx(ctx context.Context, tx *sql.Tx, id string) (challenge.Restrictions, error) {
	return queryRestrictions(ctx, tx, id)
}

func queryRestrictions(ctx context.Context, q querier, id string) (challenge.Restrictions, error) {
	var r challenge.Restrictions
	err := q.QueryRowContext(ctx, `
		select news_trading_allowed, scalping_allowed, hedging_allowed,
			martingale_allowed, ea_allowed, copy_trading_allowed, grid_allowed,
			arbitrage_allowed, overnight_holding_allowed, weekend_holding_allowed
		from challenge_restrictions where challenge_id=$1
	`, id).Scan(&r.NewsTrading, &r.Scalping, &r.Hedging, &r.Martingale, &r.ExpertAdvisors,
		&r.CopyTrading, &r.Grid, &r.Arbitrage, &r.OvernightHolding, &r.WeekendHolding)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent row reads as the documented defaults.
		return challenge.DefaultRestrictions(), nil
	}
	return r, err
}

func (s *Store) loadSegments(ctx context.Context, id string) ([]string, error) {
	return querySegments(ctx, s.db, id)
}

func loadSegmentsTx(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	return querySegments(ctx, tx, id)
}

func querySegments(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		select segment from challenge_segments where challenge_id=$1 order by segment asc
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var seg string
		if err := rows.Scan(&seg); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *Store) querySummaries(ctx context.Context, q string, args ...any) ([]challenge.Summary, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []challenge.Summary
	for rows.Next() {
		var sum challenge.Summary
		h := &sum.Header
		if err := rows.Scan(
			&h.ID, &h.TenantID, &h.Name, &h.Type, &h.AccountSize, &h.EntryFee,
			&h.Leverage, &h.Currency, &h.Refundable, &h.Status, &h.CreatedAt, &h.UpdatedAt,
			&sum.SalesCount, &sum.TotalRevenue,
		); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func scanHeader(r rowScanner) (*challenge.Header, error) {
	var h challenge.Header
	err := r.Scan(
		&h.ID, &h.TenantID, &h.Name, &h.Type, &h.AccountSize, &h.EntryFee,
		&h.Leverage, &h.Currency, &h.Refundable, &h.Status, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}
