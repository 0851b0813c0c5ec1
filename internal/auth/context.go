package auth

import "context"

type authContextKey struct{}

// ContextWithAuth attaches the per-request authentication result to the
// context.
func ContextWithAuth(ctx context.Context, ac *AuthContext) context.Context {
	if ac == nil {
		return ctx
	}
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthFromContext extracts the authentication result from the context.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
