package authcore

import "context"

type originContextKey struct{}

// WithOrigin attaches the request origin (typically the caller's IP address)
// to ctx. The Engine uses it as the second lockout-guard key and records it
// on audit events. Login without an origin still throttles per identifier.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originContextKey{}, origin)
}

func originFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	origin, _ := ctx.Value(originContextKey{}).(string)
	return origin
}
