package middleware

import "context"

type contextKey string

const (
	ctxUserID  contextKey = "user_id"
	ctxOwnerID contextKey = "owner_id"
	ctxGuest   contextKey = "guest"
	ctxReqID   contextKey = "request_id"
)

// GuestOwnerPrefix keeps guest owners from colliding with user ids.
const GuestOwnerPrefix = "guest:"

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// OwnerFromContext returns the cart/order owner: the authenticated user, or
// the guest owner when the cart routes run without auth.
func OwnerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOwnerID).(string); ok && v != "" {
		return v
	}
	return UserIDFromContext(ctx)
}

func IsGuest(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ctxGuest).(bool)
	return v
}

// WithUserID injects an authenticated user, who also owns the cart and orders.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxOwnerID, userID)
}

// WithGuestOwner injects a guest owner derived from the guest id.
func WithGuestOwner(ctx context.Context, guestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxOwnerID, GuestOwnerPrefix+guestID)
	return context.WithValue(ctx, ctxGuest, true)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxReqID).(string)
	return v
}
