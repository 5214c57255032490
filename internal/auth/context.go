package auth

import (
	"context"

	"github.com/pergamon-io/pergamon/internal/domain"
)

// contextKey is a private type to avoid context key collisions.
type contextKey string

// identityKey is the context key under which the resolved identity is stored.
const identityKey contextKey = "pergamon-identity"

// Identity is the authenticated caller attached to a request context.
// It is built from the freshly re-resolved user record, never from raw
// token claims, so the role and active state are current.
type Identity struct {
	// UserID is the authenticated user's ID.
	UserID int64

	// Name is the user's display name.
	Name string

	// Email is the user's email.
	Email string

	// Role is the user's current role.
	Role domain.UserRole
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom retrieves the identity from a request context.
// Returns nil for anonymous requests.
func IdentityFrom(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// IdentityFromUser builds an Identity from a user record.
func IdentityFromUser(u *domain.User) *Identity {
	return &Identity{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
	}
}
