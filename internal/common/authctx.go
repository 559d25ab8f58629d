package common

import "context"

type ctxKey string

const (
	userIDKey  ctxKey = "auth/user-id"
	storeIDKey ctxKey = "auth/store-id"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithStoreID records the dealership store the caller acts for.
func WithStoreID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, storeIDKey, id)
}

// StoreID returns the dealership store carried by the token, if any.
func StoreID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(storeIDKey).(string)
	return id, ok && id != ""
}
