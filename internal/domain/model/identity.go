package model

import "context"

// Identity is the request-scoped principal bound after successful API key
// authentication. Scopes map 1:1 to authorization capabilities; downstream
// handlers consult them for access decisions.
type Identity struct {
	UserID  int64
	KeyName string
	KeyHash string
	Tier    Tier
	Scopes  []string
}

// HasScope reports whether the identity carries the given capability scope.
func (id Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type identityCtxKey struct{}

// WithIdentity returns a child context carrying the identity. The identity
// lives and dies with the request context; it is never stored in any
// process-global slot, so reused workers cannot observe a previous request's
// principal.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFrom extracts the bound identity from the context. The second
// return is false for unauthenticated requests.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}
