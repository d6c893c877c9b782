package contextutil

import "context"

const ownerKey contextKey = "owner"

// WithOwner returns a copy of ctx carrying the authenticated owner ID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// OwnerFromContext returns the authenticated owner ID, or "" when the request
// is anonymous.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}
