// Package audit records administrative and inventory mutations as structured log entries.
package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/obs"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the identifier stored by WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// LogEvent writes an audit entry for event on resource/id, with the acting principal and
// request id taken from ctx. An unnamed event is still recorded, at warn level.
func LogEvent(ctx context.Context, event, resource string, id int64, extra ...zap.Field) {
	event = strings.TrimSpace(event)
	fields := make([]zap.Field, 0, 6+len(extra))
	fields = append(fields,
		zap.String("type", "audit"),
		zap.String("event", event),
		zap.String("resource", resource),
	)
	if id != 0 {
		fields = append(fields, zap.Int64("resource_id", id))
	}
	if rid := RequestID(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		fields = append(fields, zap.Int64("actor_id", p.UserID), zap.String("actor", p.Email))
	}
	fields = append(fields, extra...)
	if event == "" {
		obs.Logger().Warn("audit event without name", fields...)
		return
	}
	obs.Logger().Info("audit", fields...)
}
