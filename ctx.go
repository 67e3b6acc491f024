package authclient

import "context"

var snapshotCtxKey = &contextKey{"session"}
var selectionCtxKey = &contextKey{"church"}

type contextKey struct {
	name string
}

// WithSession sets the session snapshot in the given context
func WithSession(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snap)
}

// SessionFromContext finds the session snapshot in the context.
func SessionFromContext(ctx context.Context) (Snapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(Snapshot)
	return raw, ok
}

// UserFromContext returns the user of the session in ctx, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	snap, ok := SessionFromContext(ctx)
	if !ok || snap.User == nil {
		return nil, false
	}
	return snap.User, true
}

// WithSelection sets the selected church in the given context
func WithSelection(ctx context.Context, sel Selection) context.Context {
	return context.WithValue(ctx, selectionCtxKey, sel)
}

// SelectionFromContext finds the selected church in the context.
func SelectionFromContext(ctx context.Context) (Selection, bool) {
	raw, ok := ctx.Value(selectionCtxKey).(Selection)
	return raw, ok
}

// Can is a convenience function to check a capability of the session in
// the context. Unauthenticated sessions can do nothing.
func Can(ctx context.Context, capability string) bool {
	snap, ok := SessionFromContext(ctx)
	if !ok || !snap.IsAuthenticated {
		return false
	}
	return snap.Permissions().Allows(capability)
}
