package session

import (
	"context"
)

var storeCtxKey = &contextKey{"store"}

type contextKey struct {
	name string
}

// WithContext sets the Store in the given context.
func WithContext(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, storeCtxKey, store)
}

// FromContext finds the store from the context.
func FromContext(ctx context.Context) (*Store, bool) {
	raw, ok := ctx.Value(storeCtxKey).(*Store)
	return raw, ok
}

// MustFromContext returns the store from the context or panics. Calling it
// outside a WithContext scope is a programmer error, not a runtime
// condition: it should surface during development, not be caught or retried.
func MustFromContext(ctx context.Context) *Store {
	store, ok := FromContext(ctx)
	if !ok {
		panic("session: MustFromContext must be used within a WithContext scope")
	}
	return store
}
