// Package resttp executes field resolutions as outbound REST calls. Each
// resolution is parameterized purely by an immutable FieldMapping value and
// the runtime arguments; the resolver itself holds no mutable state, so
// concurrent resolutions against the same schema snapshot are safe.
package resttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/graphgate/graphgate/internal/eventbus"
	"github.com/graphgate/graphgate/internal/events"
	"github.com/graphgate/graphgate/internal/federation"
)

const maxResponseBytes = 64 << 20

// Resolver executes one outbound HTTP call per field resolution.
type Resolver struct {
	opts *Options
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &Resolver{opts: o}
}

// Resolve substitutes arguments into the mapping's path template, issues the
// call exactly once, and decodes the response: JSON content is returned as
// structured data, anything else as raw text.
//
// A missing path argument fails before any outbound I/O. Non-2xx statuses,
// connection failures and timeouts all surface as *ResolutionError tagged
// with the owning service, method and path; the query-execution layer
// decides whether that nulls the field or fails the response.
func (r *Resolver) Resolve(ctx context.Context, mapping federation.FieldMapping, args map[string]any) (any, error) {
	path, used, err := interpolatePath(mapping, args)
	if err != nil {
		return nil, err
	}

	fullURL := strings.TrimRight(mapping.BaseURL, "/") + path
	query := url.Values{}
	for _, p := range mapping.Parameters {
		if p.In != federation.InQuery {
			continue
		}
		if v, ok := args[p.Name]; ok && v != nil {
			query.Set(p.Name, stringify(v))
			used[p.Name] = true
		}
	}
	if isRead(mapping.HTTPMethod) {
		// Remaining unused scalar arguments ride along as query parameters.
		for name, v := range args {
			if used[name] || v == nil {
				continue
			}
			query.Set(name, stringify(v))
		}
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if mapping.HasBody {
		if input, ok := args["input"]; ok && input != nil {
			data, err := json.Marshal(input)
			if err != nil {
				return nil, &ResolutionError{Service: mapping.Service, Method: mapping.HTTPMethod, Path: path, Err: fmt.Errorf("encode request body: %w", err)}
			}
			body = bytes.NewReader(data)
		}
	}

	// The per-call budget applies unconditionally: it can only shorten the
	// inbound deadline, never extend it, so request-level cancellation
	// still propagates.
	if r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, mapping.HTTPMethod, fullURL, body)
	if err != nil {
		return nil, &ResolutionError{Service: mapping.Service, Method: mapping.HTTPMethod, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.forwardHeaders(ctx, req)

	start := time.Now()
	eventbus.Publish(ctx, events.RESTCallStart{Service: mapping.Service, Method: mapping.HTTPMethod, URL: fullURL})
	resp, err := r.opts.Client.Do(req)
	if err != nil {
		eventbus.Publish(ctx, events.RESTCallFinish{Service: mapping.Service, Method: mapping.HTTPMethod, URL: fullURL, Err: err, Duration: time.Since(start)})
		return nil, &ResolutionError{Service: mapping.Service, Method: mapping.HTTPMethod, Path: path, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	eventbus.Publish(ctx, events.RESTCallFinish{Service: mapping.Service, Method: mapping.HTTPMethod, URL: fullURL, Status: resp.StatusCode, Err: err, Duration: time.Since(start)})
	if err != nil {
		return nil, &ResolutionError{Service: mapping.Service, Method: mapping.HTTPMethod, Path: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResolutionError{Service: mapping.Service, Method: mapping.HTTPMethod, Path: path, Status: resp.StatusCode}
	}

	return decode(resp.Header.Get("Content-Type"), payload)
}

// forwardHeaders copies the allow-listed inbound headers onto the outbound
// request. No other headers cross the boundary.
func (r *Resolver) forwardHeaders(ctx context.Context, req *http.Request) {
	inbound, ok := HeadersFromContext(ctx)
	if !ok {
		return
	}
	for _, name := range r.opts.ForwardHeaders {
		if v := inbound.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
}

// interpolatePath substitutes every {param} placeholder with the
// correspondingly-named argument, URL-encoded. It returns the names it
// consumed so they are not duplicated as query parameters.
func interpolatePath(mapping federation.FieldMapping, args map[string]any) (string, map[string]bool, error) {
	used := map[string]bool{}
	segments := strings.Split(mapping.PathTemplate, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.Trim(seg, "{}")
		v, ok := args[name]
		if !ok || v == nil {
			return "", nil, &MissingArgumentError{Field: mapping.FieldName, Param: name}
		}
		segments[i] = url.PathEscape(stringify(v))
		used[name] = true
	}
	path := strings.Join(segments, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, used, nil
}

func isRead(method string) bool { return method == http.MethodGet }

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func decode(contentType string, payload []byte) (any, error) {
	if strings.Contains(contentType, "json") && len(payload) > 0 {
		var out any
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
		// Advertised JSON that does not parse degrades to text.
	}
	return string(payload), nil
}
