package requestid

import (
	"context"

	"github.com/google/uuid"
)

type idKey struct{}
type opKey struct{}

// New generates a random UUID v4 request ID for an outgoing API call.
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(idKey{}).(string)
	return id
}

// WithOperation tags ctx with the session operation driving the call
// (login, check_auth, ...), so every log record and outgoing request can
// be traced back to the operation that triggered it.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, opKey{}, op)
}

// Operation extracts the session operation from ctx. Returns "" if absent.
func Operation(ctx context.Context) string {
	op, _ := ctx.Value(opKey{}).(string)
	return op
}
