package transport

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HeaderCorrelationID carries the correlation identifier on every request.
const HeaderCorrelationID = "X-Correlation-Id"

// MaxCorrelationIDLength bounds the length of caller-supplied correlation identifiers.
const MaxCorrelationIDLength = 128

type correlationContextKey struct{}

// NormalizeCorrelationID trims and validates an identifier.
func NormalizeCorrelationID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxCorrelationIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// WithCorrelationID annotates ctx with a correlation identifier sent with
// subsequent requests. Invalid identifiers are ignored.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	normalized, ok := NormalizeCorrelationID(id)
	if !ok {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationContextKey{}, normalized)
}

// CorrelationIDFromContext extracts the correlation identifier carried by ctx.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationContextKey{}).(string); ok {
		return v
	}
	return ""
}

// GenerateCorrelationID returns a time-ordered UUIDv7 string.
func GenerateCorrelationID() string {
	return uuid.Must(uuid.NewV7()).String()
}
