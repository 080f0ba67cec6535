// internal/auth/identity.go
// Caller identity carried through the request context

package auth

import "context"

// Identity is the authenticated caller of a request or WebSocket connection
type Identity struct {
	UserID        int64
	Username      string
	Role          string
	SecurityLevel int
}

type contextKey int

const identityKey contextKey = iota

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the caller identity set by Authenticate
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserIDFromContext extracts user ID from request context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return id.UserID, true
}
