// Package audit emits structured activity events for security-relevant
// operations: logins, registrations, aggregate mutations, ticket actions.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"propdesk.io/internal/auth"
	"propdesk.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// enrichment.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an activity entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	enriched := make([]zap.Field, 0, len(fields)+4)
	enriched = append(enriched, zap.String("type", "audit"))
	if rid := requestIDFromContext(ctx); rid != "" {
		enriched = append(enriched, zap.String("request_id", rid))
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		enriched = append(enriched,
			zap.String("actor_id", actor.ID),
			zap.String("actor_role", string(actor.Role)))
		if actor.TenantID != "" {
			enriched = append(enriched, zap.String("tenant_id", actor.TenantID))
		}
	}
	enriched = append(enriched, fields...)

	obs.Logger().Info(event, enriched...)
	return nil
}
