package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Jane", "tenant": "Acme Funded"}
	got := Render("Hi {{name}}, welcome to {{ tenant }}! Your code: {{code}}", vars)
	require.Equal(t, "Hi Jane, welcome to Acme Funded! Your code: {{code}}", got)
}

func TestTemplateLookupPrefersTenant(t *testing.T) {
	store := NewInMemory()
	store.AddTemplate(Template{Name: "welcome", Subject: "global", Body: "g"})
	store.AddTemplate(Template{TenantID: "t1", Name: "welcome", Subject: "branded", Body: "b"})

	tpl, err := store.TemplateByName(context.Background(), "t1", "welcome")
	require.NoError(t, err)
	require.Equal(t, "branded", tpl.Subject)

	tpl, err = store.TemplateByName(context.Background(), "t2", "welcome")
	require.NoError(t, err)
	require.Equal(t, "global", tpl.Subject)

	_, err = store.TemplateByName(context.Background(), "t1", "missing")
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSendLogsOutcome(t *testing.T) {
	store := NewInMemory()
	store.AddTemplate(Template{Name: "welcome", Subject: "Hello {{name}}", Body: "Hi {{name}}"})
	sender := &fakeSender{}
	m := NewMailerWithSender(store, sender, "no-reply@propdesk.io")

	err := m.Send(context.Background(), "t1", "jane@example.com", "welcome", map[string]string{"name": "Jane"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, []string{"Hello Jane"}, sender.sent[0].GetHeader("Subject"))

	logs := store.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, LogSent, logs[0].Status)
	require.Equal(t, "jane@example.com", logs[0].Recipient)
}

func TestSendFailureMarksLogFailed(t *testing.T) {
	store := NewInMemory()
	store.AddTemplate(Template{Name: "welcome", Subject: "s", Body: "b"})
	sender := &fakeSender{err: errors.New("smtp: connection refused")}
	m := NewMailerWithSender(store, sender, "no-reply@propdesk.io")

	err := m.Send(context.Background(), "t1", "jane@example.com", "welcome", nil)
	require.Error(t, err)

	logs := store.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, LogFailed, logs[0].Status)
	require.Contains(t, logs[0].Error, "connection refused")
}
