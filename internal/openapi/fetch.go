package openapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ConventionalPaths are probed in order when looking for a backend's
// interface document.
var ConventionalPaths = []string{
	"/openapi.json",
	"/openapi",
	"/swagger.json",
	"/swagger",
	"/api/openapi.json",
	"/api/swagger.json",
	"/spec.json",
}

// ErrNoDocument indicates none of the conventional paths produced a
// parsable document. The service is still discoverable, just opaque.
var ErrNoDocument = errors.New("openapi: no document found at any conventional path")

const maxDocumentBytes = 16 << 20

// Fetcher probes a backend for its interface document.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// FetcherOption mutates fetcher defaults.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for probing.
func WithHTTPClient(c *http.Client) FetcherOption { return func(f *Fetcher) { f.client = c } }

// WithProbeTimeout bounds each individual probe request.
func WithProbeTimeout(d time.Duration) FetcherOption { return func(f *Fetcher) { f.timeout = d } }

// NewFetcher returns a Fetcher with a 5s per-probe timeout by default.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{client: http.DefaultClient, timeout: 5 * time.Second}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch tries each conventional path against baseURL and returns the first
// document that responds 200 and parses. A non-200, unreachable, or
// unparsable candidate just moves probing to the next path; only total
// absence yields ErrNoDocument.
func (f *Fetcher) Fetch(ctx context.Context, baseURL string) (*Document, error) {
	base := strings.TrimRight(baseURL, "/")
	for _, path := range ConventionalPaths {
		doc, err := f.probe(ctx, base+path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		doc.SourcePath = path
		return doc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDocument, baseURL)
}

func (f *Fetcher) probe(ctx context.Context, url string) (*Document, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openapi: probe %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, err
	}
	return Parse(body)
}
