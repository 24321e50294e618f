package authcore

import "context"

type contextKey struct{}

var identityKey contextKey

// ContextWithIdentity attaches a verified identity to the request context.
// The middleware does this once per request, after authentication.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by the middleware, or
// (nil, false) when the request never passed authentication.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}
