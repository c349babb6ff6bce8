package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"propdesk.io/internal/auth"
	"propdesk.io/internal/obs"
)

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := obs.ReplaceLoggerForTests(zap.New(core))
	defer restore()

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithActor(ctx, auth.Actor{ID: "user-42", Role: auth.RoleAdmin, TenantID: "t1"})

	err := LogEvent(ctx, "challenge.published", zap.String("challenge_id", "c1"))
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "challenge.published", entries[0].Message)

	fields := entries[0].ContextMap()
	require.Equal(t, "audit", fields["type"])
	require.Equal(t, "req-123", fields["request_id"])
	require.Equal(t, "user-42", fields["actor_id"])
	require.Equal(t, "admin", fields["actor_role"])
	require.Equal(t, "t1", fields["tenant_id"])
	require.Equal(t, "c1", fields["challenge_id"])
}

func TestLogEventRequiresName(t *testing.T) {
	require.Error(t, LogEvent(context.Background(), "  "))
}

func TestLogEventAnonymous(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := obs.ReplaceLoggerForTests(zap.New(core))
	defer restore()

	require.NoError(t, LogEvent(context.Background(), "auth.login_failed", zap.String("email", "x@y.z")))

	fields := logs.All()[0].ContextMap()
	require.NotContains(t, fields, "actor_id")
	require.NotContains(t, fields, "request_id")
}
