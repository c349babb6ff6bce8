package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"propdesk.io/internal/certificate"
	"propdesk.io/internal/ids"
	"propdesk.io/internal/notify"
)

// TemplateByName prefers the tenant's branded template and falls back to the
// global default of the same name.
func (s *Store) TemplateByName(ctx context.Context, tenantID, name string) (*notify.Template, error) {
	var t notify.Template
	err := s.db.QueryRowContext(ctx, `
		select id, coalesce(tenant_id,''), name, subject, body
		from email_templates
		where name=$2 and (tenant_id=$1 or tenant_id is null)
		order by tenant_id nulls last
		limit 1
	`, tenantID, name).Scan(&t.ID, &t.TenantID, &t.Name, &t.Subject, &t.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notify.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateEmailLog(ctx context.Context, l *notify.EmailLog) error {
	l.ID = ids.New()
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into email_logs(id, tenant_id, recipient, template, status, created_at, updated_at)
		values ($1,nullif($2,''),$3,$4,$5,$6,$6)
	`, l.ID, l.TenantID, l.Recipient, l.Template, l.Status, now)
	return err
}

func (s *Store) SetEmailLogStatus(ctx context.Context, id string, status notify.LogStatus, sendErr string) error {
	_, err := s.db.ExecContext(ctx, `
		update email_logs set status=$2, error=nullif($3,''), updated_at=now() where id=$1
	`, id, status, sendErr)
	return err
}

// CreateCertificate records a rendered certificate artifact.
func (s *Store) CreateCertificate(ctx context.Context, c *certificate.Certificate) error {
	c.ID = ids.New()
	c.GeneratedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into certificates(id, tenant_id, user_id, order_id, certificate_number, certificate_url, generated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.TenantID, c.UserID, c.OrderID, c.Number, c.URL, c.GeneratedAt)
	return err
}

// CertificatesByUser lists a user's certificates, newest first.
func (s *Store) CertificatesByUser(ctx context.Context, tenantID, userID string) ([]certificate.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, user_id, order_id, certificate_number, certificate_url, generated_at
		from certificates where tenant_id=$1 and user_id=$2 order by generated_at desc
	`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []certificate.Certificate
	for rows.Next() {
		var c certificate.Certificate
		if err := rows.Scan(&c.ID, &c.TenantID, &c.UserID, &c.OrderID, &c.Number, &c.URL, &c.GeneratedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
