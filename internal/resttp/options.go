package resttp

import (
	"net/http"
	"time"
)

// Options configures the REST resolver.
//
// Defaults:
// - CallTimeout:    30s per outbound call, applied on top of any inbound
//   deadline (it can only shorten one, never extend it)
// - Client:         http.DefaultClient
// - ForwardHeaders: authorization, x-api-key, x-user-id, x-tenant-id
//
// The resolver makes each call exactly once; retries belong to the layer in
// front of the gateway.
type Options struct {
	Client         *http.Client
	CallTimeout    time.Duration
	ForwardHeaders []string
}

// Option mutates Options. Use the WithX helpers below.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Client:         http.DefaultClient,
		CallTimeout:    30 * time.Second,
		ForwardHeaders: []string{"authorization", "x-api-key", "x-user-id", "x-tenant-id"},
	}
}

func WithClient(c *http.Client) Option          { return func(o *Options) { o.Client = c } }
func WithCallTimeout(d time.Duration) Option    { return func(o *Options) { o.CallTimeout = d } }
func WithForwardHeaders(hdrs ...string) Option  { return func(o *Options) { o.ForwardHeaders = hdrs } }
