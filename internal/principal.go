package internal

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated identity attached to each request. It
// lives here rather than in the auth package so handler packages can read
// it without importing auth (which imports their models back).
type Principal struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
}

// IsAdmin reports whether the principal may use admin-only endpoints.
func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

type principalKey struct{}

// ContextWithUser attaches the principal to the request context.
func ContextWithUser(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// UserFromContext returns the authenticated principal, if any.
func UserFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
