// Package notify sends transactional email. It is invoked after the business
// transaction commits; a send failure is logged but never unwinds state.
package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"propdesk.io/internal/obs"
)

var (
	ErrTemplateNotFound = errors.New("notify: template not found")
)

type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogSent    LogStatus = "sent"
	LogFailed  LogStatus = "failed"
)

// Template is a stored email body. TenantID is empty for platform-wide
// defaults; tenant-specific rows shadow globals of the same name.
type Template struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id,omitempty"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// EmailLog is one delivery attempt.
type EmailLog struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Recipient string    `json:"recipient"`
	Template  string    `json:"template"`
	Status    LogStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists templates and delivery logs.
type Store interface {
	// TemplateByName prefers the tenant's own template and falls back to the
	// global one. ErrTemplateNotFound when neither exists.
	TemplateByName(ctx context.Context, tenantID, name string) (*Template, error)
	CreateEmailLog(ctx context.Context, l *EmailLog) error
	SetEmailLogStatus(ctx context.Context, id string, status LogStatus, sendErr string) error
}

// Sender is the SMTP boundary, satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP holds dialer settings loaded from the environment.
type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Mailer renders a named template and delivers it, recording the attempt in
// the email log.
type Mailer struct {
	store  Store
	sender Sender
	from   string
}

func NewMailer(store Store, cfg SMTP) *Mailer {
	return &Mailer{
		store:  store,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.From,
	}
}

// NewMailerWithSender injects a Sender, used by tests.
func NewMailerWithSender(store Store, sender Sender, from string) *Mailer {
	return &Mailer{store: store, sender: sender, from: from}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders. Unknown placeholders are left
// untouched so a missing variable is visible in the delivered mail.
func Render(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// Send looks up the template, writes a pending log row, delivers, and settles
// the row. The returned error is informational; callers must not fail their
// own operation on it.
func (m *Mailer) Send(ctx context.Context, tenantID, recipient, templateName string, vars map[string]string) error {
	tpl, err := m.store.TemplateByName(ctx, tenantID, templateName)
	if err != nil {
		return fmt.Errorf("lookup template %q: %w", templateName, err)
	}

	entry := &EmailLog{
		TenantID:  tenantID,
		Recipient: recipient,
		Template:  templateName,
		Status:    LogPending,
	}
	if err := m.store.CreateEmailLog(ctx, entry); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", Render(tpl.Subject, vars))
	msg.SetBody("text/html", Render(tpl.Body, vars))

	if err := m.sender.DialAndSend(msg); err != nil {
		obs.Logger().Warn("email delivery failed",
			zap.String("template", templateName),
			zap.String("recipient", recipient),
			zap.Error(err))
		if logErr := m.store.SetEmailLogStatus(ctx, entry.ID, LogFailed, err.Error()); logErr != nil {
			obs.Logger().Error("email log update failed", zap.Error(logErr))
		}
		return fmt.Errorf("send %q to %s: %w", templateName, recipient, err)
	}
	return m.store.SetEmailLogStatus(ctx, entry.ID, LogSent, "")
}
