package kit

import "context"

type callKey struct{}

// Call identifies who is invoking an endpoint. It travels in the context
// from the transport layer down to the Logging middleware.
type Call struct {
	Transport  string // "http" or "mcp"
	RequestID  string
	RemoteAddr string
}

// WithCall stores c in ctx, replacing any previous Call.
func WithCall(ctx context.Context, c Call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

// CallFrom returns the Call stored in ctx. Transport defaults to "http".
func CallFrom(ctx context.Context) Call {
	c, _ := ctx.Value(callKey{}).(Call)
	if c.Transport == "" {
		c.Transport = "http"
	}
	return c
}

// WithTransport sets only the transport of the Call in ctx.
func WithTransport(ctx context.Context, transport string) context.Context {
	c := CallFrom(ctx)
	c.Transport = transport
	return WithCall(ctx, c)
}
