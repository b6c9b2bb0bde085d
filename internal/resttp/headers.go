package resttp

import (
	"context"
	"net/http"
)

type headerKey struct{}

// ContextWithHeaders stores the inbound request headers in ctx so the
// resolver can forward the allow-listed subset on outbound calls.
func ContextWithHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, headerKey{}, h)
}

// HeadersFromContext returns the inbound headers stored in ctx, if any.
func HeadersFromContext(ctx context.Context) (http.Header, bool) {
	h, ok := ctx.Value(headerKey{}).(http.Header)
	return h, ok
}
