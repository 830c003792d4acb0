package identity

import "context"

// Identity is the authenticated caller. The API runs behind the platform
// gateway, which authenticates the session and forwards the user id in the
// X-User-ID header; this package is the seam where a full authenticator
// would sit.
type Identity struct {
	UserID int64
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
