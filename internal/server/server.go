// Package server is the HTTP front door: it routes graph queries to the
// currently published schema snapshot and exposes the mesh's health,
// stats, and forced-refresh endpoints.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/graphgate/graphgate/internal/eventbus"
	"github.com/graphgate/graphgate/internal/events"
	"github.com/graphgate/graphgate/internal/language"
	"github.com/graphgate/graphgate/internal/mesh"
	"github.com/graphgate/graphgate/internal/reqid"
	"github.com/graphgate/graphgate/internal/resttp"
)

// Handler serves the gateway endpoints. Each request executes against the
// snapshot that was published when the request arrived; a concurrent
// rebuild never affects in-flight queries.
type Handler struct {
	manager *mesh.Manager
	refresh func(context.Context)
	log     *zap.Logger
	opt     Options
	router  chi.Router
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has
	// none. 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates the gateway handler. refresh is invoked by POST /refresh to
// trigger an immediate discovery cycle; nil falls back to rebuilding from
// the last known service set.
func New(manager *mesh.Manager, refresh func(context.Context), log *zap.Logger, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, GraphiQL: true}
	for _, f := range opts {
		f(&op)
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{manager: manager, refresh: refresh, log: log, opt: op}

	r := chi.NewRouter()
	r.Get("/graphql", h.handleGraphQL)
	r.Post("/graphql", h.handleGraphQL)
	r.Options("/graphql", h.handleGraphQL)
	r.Get("/healthz", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Post("/refresh", h.handleRefresh)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, _ = reqid.NewContext(ctx)
	ctx = resttp.ContextWithHeaders(ctx, r.Header)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	// Serve GraphiQL when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	snap := h.manager.Snapshot()
	if snap == nil {
		status = http.StatusServiceUnavailable
		writeJSON(w, status, errorResponse("no schema available: mesh has not completed a build"), h.opt.Pretty)
		return
	}

	req, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != "" {
		status = http.StatusBadRequest
		if berr == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	writeJSON(w, status, h.executeOne(ctx, snap, req), h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, snap *mesh.Snapshot, req graphQLRequest) any {
	opType := ""
	if doc, err := language.ParseQuery(req.Query); err == nil {
		if opDef := doc.Operations.ForName(req.OperationName); opDef != nil {
			opType = string(opDef.Operation)
		} else if len(doc.Operations) == 1 {
			opType = string(doc.Operations[0].Operation)
		}
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := graphql.Do(graphql.Params{
		Schema:         *snap.Executable,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return result
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.manager.GetHealthStatus()
	status := http.StatusOK
	if health.Status == mesh.StatusEmpty {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health, h.opt.Pretty)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.GetStats(), h.opt.Pretty)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresh != nil {
		h.refresh(r.Context())
	} else {
		h.manager.Rebuild(r.Context())
	}
	h.log.Info("forced mesh refresh", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, h.manager.GetHealthStatus(), h.opt.Pretty)
}

// ------------------ Request parsing ------------------

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

const errBodyTooLargeMessage = "body too large"

func parseRequest(r *http.Request, maxBody int64) (graphQLRequest, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return graphQLRequest{}, "missing 'query'"
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return graphQLRequest{}, "invalid 'variables' JSON"
			}
		}
		return graphQLRequest{
			Query:         q,
			Variables:     vars,
			OperationName: r.URL.Query().Get("operationName"),
		}, ""
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return graphQLRequest{}, "unsupported Content-Type"
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return graphQLRequest{}, "failed to read body"
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return graphQLRequest{}, errBodyTooLargeMessage
	}

	var req graphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return graphQLRequest{}, "invalid JSON"
	}
	if req.Query == "" {
		return graphQLRequest{}, "missing 'query'"
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, ""
}

// ------------------ Response formatting ------------------

type gqlError struct {
	Message string `json:"message"`
}

type gqlResult struct {
	Data   any        `json:"data"`
	Errors []gqlError `json:"errors,omitempty"`
}

func errorResponse(message string) gqlResult {
	return gqlResult{Errors: []gqlError{{Message: message}}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			allowed = true
			wildcard = true
			break
		}
		if o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
