package auth

import (
	"context"

	"github.com/tokenportal/tokenportal/internal/model"
)

// Identity is the resolved caller of an authenticated request: the API
// token that was presented and the user who owns it.
type Identity struct {
	UserID  int64
	TokenID int64
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity adds the resolved Identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

const sessionUserContextKey contextKey = "session_user"

// ContextWithSessionUser adds the session-authenticated user to the context.
func ContextWithSessionUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, sessionUserContextKey, user)
}

// SessionUserFromContext retrieves the session-authenticated user.
// Returns nil if not present.
func SessionUserFromContext(ctx context.Context) *model.User {
	user, ok := ctx.Value(sessionUserContextKey).(*model.User)
	if !ok {
		return nil
	}
	return user
}
