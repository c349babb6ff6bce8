package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"propdesk.io/internal/auth"
	"propdesk.io/internal/ids"
	"propdesk.io/internal/ticket"
)

const ticketColumns = `
	id, tenant_id, coalesce(user_id,''), ticket_number, subject, coalesce(category,''),
	priority, status, created_by_role, resolved_at, created_at, updated_at`

func (s *TicketStore) Open(ctx context.Context, p ticket.OpenParams) (*ticket.Ticket, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	t := &ticket.Ticket{
		ID:            ids.New(),
		TenantID:      p.Opener.TenantID,
		Number:        ticket.NewNumber(now),
		Subject:       strings.TrimSpace(p.Subject),
		Category:      strings.TrimSpace(p.Category),
		Priority:      p.Priority,
		Status:        ticket.StatusOpen,
		CreatedByRole: p.Opener.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p.Opener.Role == auth.RoleUser {
		t.UserID = p.Opener.ID
	}

	if _, err := tx.ExecContext(ctx, `
		insert into support_tickets(
			id, tenant_id, user_id, ticket_number, subject, category,
			priority, status, created_by_role, created_at, updated_at)
		values ($1,$2,nullif($3,''),$4,$5,nullif($6,''),$7,$8,$9,$10,$10)
	`, t.ID, t.TenantID, t.UserID, t.Number, t.Subject, t.Category,
		t.Priority, t.Status, t.CreatedByRole, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into ticket_messages(id, ticket_id, sender_id, sender_role, message, is_internal_note, created_at)
		values ($1,$2,$3,$4,$5,false,$6)
	`, ids.New(), t.ID, p.Opener.ID, p.Opener.Role, strings.TrimSpace(p.Body), now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TicketStore) Get(ctx context.Context, viewer auth.Actor, id string) (*ticket.Ticket, []ticket.Message, error) {
	row := s.db.QueryRowContext(ctx, `select `+ticketColumns+` from support_tickets where id=$1`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if !ticket.CanView(viewer, t) {
		return nil, nil, ticket.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, ticket_id, sender_id, sender_role, message, is_internal_note, created_at
		from ticket_messages where ticket_id=$1 order by created_at asc
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var msgs []ticket.Message
	for rows.Next() {
		var m ticket.Message
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.SenderRole, &m.Body, &m.InternalNote, &m.CreatedAt); err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}
	return t, msgs, rows.Err()
}

func (s *TicketStore) List(ctx context.Context, viewer auth.Actor, f ticket.Filter) ([]ticket.Summary, error) {
	q := `select ` + ticketColumns + `,
		(select count(*) from ticket_messages m where m.ticket_id = t.id),
		(select max(m.created_at) from ticket_messages m where m.ticket_id = t.id)
	from support_tickets t where `
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch viewer.Role {
	case auth.RoleUser:
		q += `t.tenant_id=` + arg(viewer.TenantID) + ` and t.user_id=` + arg(viewer.ID)
	case auth.RoleAdmin:
		q += `t.tenant_id=` + arg(viewer.TenantID)
		if f.CreatedByRole != "" {
			q += ` and t.created_by_role=` + arg(f.CreatedByRole)
		}
	case auth.RoleRoot:
		q += `t.created_by_role='admin'`
		if f.TenantID != "" {
			q += ` and t.tenant_id=` + arg(f.TenantID)
		}
	default:
		return nil, ticket.ErrForbidden
	}
	if f.Status != "" {
		q += ` and t.status=` + arg(f.Status)
	}
	q += `
	order by case t.priority when 'urgent' then 3 when 'high' then 2 when 'medium' then 1 else 0 end desc,
		t.updated_at desc`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ticket.Summary
	for rows.Next() {
		var sum ticket.Summary
		var last sql.NullTime
		if err := rows.Scan(
			&sum.ID, &sum.TenantID, &sum.UserID, &sum.Number, &sum.Subject, &sum.Category,
			&sum.Priority, &sum.Status, &sum.CreatedByRole, &sum.ResolvedAt, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.MessageCount, &last,
		); err != nil {
			return nil, err
		}
		if last.Valid {
			at := last.Time
			sum.LastMessageAt = &at
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *TicketStore) Append(ctx context.Context, viewer auth.Actor, id, body string, internalNote bool) (*ticket.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message is required", ticket.ErrInvalidInput)
	}
	if internalNote && !viewer.Role.In(auth.RoleAdmin, auth.RoleRoot) {
		return nil, fmt.Errorf("%w: internal notes", ticket.ErrForbidden)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := lockTicket(ctx, tx, viewer, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &ticket.Message{
		ID:           ids.New(),
		TicketID:     t.ID,
		SenderID:     viewer.ID,
		SenderRole:   viewer.Role,
		Body:         strings.TrimSpace(body),
		InternalNote: internalNote,
		CreatedAt:    now,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into ticket_messages(id, ticket_id, sender_id, sender_role, message, is_internal_note, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, m.ID, m.TicketID, m.SenderID, m.SenderRole, m.Body, m.InternalNote, now); err != nil {
		return nil, err
	}

	// First reply moves the ticket into progress; other statuses stay put.
	status := t.Status
	if status == ticket.StatusOpen {
		status = ticket.StatusInProgress
	}
	if _, err := tx.ExecContext(ctx, `
		update support_tickets set status=$2, updated_at=$3 where id=$1
	`, t.ID, status, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *TicketStore) SetStatus(ctx context.Context, viewer auth.Actor, id string, status ticket.Status) (*ticket.Ticket, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ticket.ErrInvalidStatus, status)
	}
	if !viewer.Role.In(auth.RoleAdmin, auth.RoleRoot) {
		return nil, fmt.Errorf("%w: status changes", ticket.ErrForbidden)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := lockTicket(ctx, tx, viewer, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.Status = status
	t.UpdatedAt = now
	if status == ticket.StatusResolved {
		t.ResolvedAt = &now
	}
	if _, err := tx.ExecContext(ctx, `
		update support_tickets set status=$2, resolved_at=$3, updated_at=$4 where id=$1
	`, t.ID, status, t.ResolvedAt, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TicketStore) Stats(ctx context.Context, viewer auth.Actor, tenantID string) (ticket.Stats, error) {
	q := `
		select count(*),
			count(*) filter (where status='open'),
			count(*) filter (where status='in_progress'),
			count(*) filter (where status='resolved'),
			count(*) filter (where status='closed'),
			count(*) filter (where priority='urgent')
		from support_tickets where `
	var args []any
	switch viewer.Role {
	case auth.RoleAdmin:
		q += `tenant_id=$1`
		args = append(args, viewer.TenantID)
	case auth.RoleRoot:
		q += `created_by_role='admin'`
		if tenantID != "" {
			q += ` and tenant_id=$1`
			args = append(args, tenantID)
		}
	case auth.RoleUser:
		q += `tenant_id=$1 and user_id=$2`
		args = append(args, viewer.TenantID, viewer.ID)
	default:
		return ticket.Stats{}, ticket.ErrForbidden
	}

	var st ticket.Stats
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&st.Total, &st.Open, &st.InProgress, &st.Resolved, &st.Closed, &st.Urgent)
	return st, err
}

func lockTicket(ctx context.Context, tx *sql.Tx, viewer auth.Actor, id string) (*ticket.Ticket, error) {
	row := tx.QueryRowContext(ctx, `select `+ticketColumns+` from support_tickets where id=$1 for update`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !ticket.CanView(viewer, t) {
		return nil, ticket.ErrNotFound
	}
	return t, nil
}

func scanTicket(r rowScanner) (*ticket.Ticket, error) {
	var t ticket.Ticket
	var resolved sql.NullTime
	err := r.Scan(
		&t.ID, &t.TenantID, &t.UserID, &t.Number, &t.Subject, &t.Category,
		&t.Priority, &t.Status, &t.CreatedByRole, &resolved, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolved.Valid {
		at := resolved.Time
		t.ResolvedAt = &at
	}
	return &t, nil
}
