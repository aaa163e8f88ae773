package telemetry

import "context"

type transportKey struct{}

// WithTransport tags ctx with the host transport that received the request.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey{}, transport)
}

// Transport returns the transport set by WithTransport, or "unknown".
func Transport(ctx context.Context) string {
	if t, ok := ctx.Value(transportKey{}).(string); ok && t != "" {
		return t
	}
	return "unknown"
}
