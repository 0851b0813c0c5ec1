// Package audit emits structured audit entries for security-relevant
// actions: logins, key retrievals, transfer submissions, role changes.
package audit

import (
	"context"
	"errors"
	"strings"

	"pesabridge.io/internal/auth"
	"pesabridge.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so audit
// entries can be correlated with access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and principal context.
func LogEvent(ctx context.Context, event string, fields map[string]string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	entry := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if ac, ok := auth.AuthFromContext(ctx); ok {
		entry = entry.Str("principal_id", ac.PrincipalID).
			Str("auth_kind", string(ac.Kind))
	}
	for k, v := range fields {
		entry = entry.Str(k, v)
	}
	entry.Msg("audit event")
	return nil
}
