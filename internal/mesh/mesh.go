// Package mesh owns all mutable federation state. A single manager holds
// the build lock, tracks the last-applied service set for change detection,
// and publishes configurations with an atomic pointer swap so readers
// never observe a half-built schema.
package mesh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/graphgate/graphgate/internal/eventbus"
	"github.com/graphgate/graphgate/internal/events"
	"github.com/graphgate/graphgate/internal/federation"
	"github.com/graphgate/graphgate/internal/gqlrt"
	"github.com/graphgate/graphgate/internal/language"
	"github.com/graphgate/graphgate/internal/resttp"
	"github.com/graphgate/graphgate/internal/schema"
	"github.com/graphgate/graphgate/internal/schemagen"
)

// Status is the manager's serving state.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusReady    Status = "ready"
	StatusDegraded Status = "degraded"
)

// BuildResult classifies the outcome of one rebuild attempt.
type BuildResult string

const (
	BuildSuccess  BuildResult = "success"
	BuildFallback BuildResult = "fallback"
	BuildFailure  BuildResult = "failure"
)

// BuildOutcome records the most recent rebuild attempt.
type BuildOutcome struct {
	Result BuildResult
	Error  string
	At     time.Time
}

// Snapshot pairs a published configuration with its executable form. Both
// are immutable after publish; in-flight resolutions always complete
// against the snapshot they started with.
type Snapshot struct {
	Config     *federation.Configuration
	Executable *graphql.Schema
}

// HealthStatus is the manager's externally visible health summary.
type HealthStatus struct {
	Status         Status    `json:"status"`
	ServicesCount  int       `json:"servicesCount"`
	MeshConfigured bool      `json:"meshConfigured"`
	LastUpdate     time.Time `json:"lastUpdate"`
}

// Stats summarizes the active configuration for operational tooling.
type Stats struct {
	ServicesCount int       `json:"servicesCount"`
	Services      []string  `json:"services"`
	LastBuild     time.Time `json:"lastBuild"`
}

// Manager orchestrates schema generation, merging and publication.
type Manager struct {
	log      *zap.Logger
	resolver *resttp.Resolver

	// mu is the build lock: rebuilds are mutually exclusive. Readers never
	// take it; they load the atomically published snapshot.
	mu      sync.Mutex
	tracked map[string]federation.ServiceDescriptor

	active  atomic.Pointer[Snapshot]
	outcome atomic.Pointer[BuildOutcome]
}

// ManagerOption mutates manager defaults.
type ManagerOption func(*Manager)

// WithLogger overrides the default nop logger.
func WithLogger(log *zap.Logger) ManagerOption { return func(m *Manager) { m.log = log } }

// NewManager creates a Manager in the Empty state. No requests can be
// served until the first UpdateConfiguration call publishes something.
func NewManager(resolver *resttp.Resolver, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:      zap.NewNop(),
		resolver: resolver,
		tracked:  map[string]federation.ServiceDescriptor{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// UpdateConfiguration reconciles the discovered service set against the
// tracked one and rebuilds the federated schema when backend reality
// actually changed. It reports whether a rebuild was performed.
//
// The build lock serializes overlapping discovery cycles; a second caller
// blocks until the in-flight rebuild completes and then runs its own change
// detection against the updated tracked set.
func (m *Manager) UpdateConfiguration(ctx context.Context, services []federation.ServiceDescriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	usable := map[string]federation.ServiceDescriptor{}
	for _, svc := range services {
		if svc.Usable() {
			usable[svc.Name] = svc
		}
	}

	if len(usable) == 0 {
		if snap := m.active.Load(); snap != nil && snap.Config.Fallback && len(m.tracked) == 0 {
			return false
		}
		m.log.Warn("no usable services discovered, publishing fallback schema")
		m.publishFallback()
		m.tracked = map[string]federation.ServiceDescriptor{}
		m.recordOutcome(BuildFallback, nil)
		return true
	}

	if !m.changed(usable) {
		return false
	}

	m.rebuildLocked(ctx, usable)
	return true
}

// Rebuild forces an immediate rebuild from the latest known service set,
// ignoring change detection. Exposed to operational tooling.
func (m *Manager) Rebuild(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tracked) == 0 {
		m.publishFallback()
		m.recordOutcome(BuildFallback, nil)
		return
	}
	m.rebuildLocked(ctx, m.tracked)
}

// changed reports whether the usable set differs from the tracked one:
// any addition, removal, base URL change, or document content change.
// Documents are compared by structural fingerprint, never by pointer.
func (m *Manager) changed(usable map[string]federation.ServiceDescriptor) bool {
	if len(usable) != len(m.tracked) {
		return true
	}
	for name, svc := range usable {
		prev, ok := m.tracked[name]
		if !ok || prev.BaseURL != svc.BaseURL || prev.Fingerprint != svc.Fingerprint {
			return true
		}
	}
	return false
}

// rebuildLocked runs the full generate-merge-publish cycle. Caller holds mu.
func (m *Manager) rebuildLocked(ctx context.Context, usable map[string]federation.ServiceDescriptor) {
	names := make([]string, 0, len(usable))
	for name := range usable {
		names = append(names, name)
	}
	sort.Strings(names)

	start := time.Now()
	eventbus.Publish(ctx, events.MeshRebuildStart{Services: names})
	m.log.Info("rebuilding federated schema", zap.Strings("services", names))

	snap, included, err := m.build(names, usable)
	eventbus.Publish(ctx, events.MeshRebuildFinish{
		Services: names,
		Fallback: snap == nil,
		Err:      err,
		Duration: time.Since(start),
	})

	if err != nil {
		m.log.Error("schema rebuild failed", zap.Error(err))
		if prev := m.active.Load(); prev == nil || prev.Config.Fallback {
			// No prior Ready configuration to keep serving.
			m.publishFallback()
		}
		m.recordOutcome(BuildFailure, err)
		return
	}

	m.active.Store(snap)
	m.tracked = map[string]federation.ServiceDescriptor{}
	for _, name := range included {
		m.tracked[name] = usable[name]
	}
	m.recordOutcome(BuildSuccess, nil)
	m.log.Info("published federated schema",
		zap.Strings("services", included),
		zap.Int("types", len(snap.Config.Schema.Types)),
		zap.Int("fields", len(snap.Config.Mappings)))
}

// build generates per-service schema parts and merges them into one new
// configuration. Per-service defects are contained: a service whose
// document cannot be processed is excluded from this cycle, the others
// proceed. Only a total inability to assemble a configuration returns an
// error.
func (m *Manager) build(names []string, usable map[string]federation.ServiceDescriptor) (*Snapshot, []string, error) {
	merged := schema.NewSchema("Federated schema assembled from discovered services.")
	mappings := map[string]federation.FieldMapping{}
	var queryFields, mutationFields []*schema.Field
	var included []string

	for _, name := range names {
		res, err := schemagen.Generate(usable[name])
		if err != nil {
			m.log.Warn("excluding service from build cycle",
				zap.String("service", name), zap.Error(err))
			continue
		}
		if res.Errors != nil {
			m.log.Warn("partial schema generation",
				zap.String("service", name), zap.Error(res.Errors))
		}
		for _, t := range res.Types {
			merged.AddType(t)
		}
		queryFields = append(queryFields, res.Query...)
		mutationFields = append(mutationFields, res.Mutation...)
		for fieldName, mapping := range res.Mappings {
			mappings[fieldName] = mapping
		}
		included = append(included, name)
	}

	if len(included) == 0 {
		return nil, nil, fmt.Errorf("mesh: no service produced a usable schema")
	}

	queryType := &schema.Type{Name: "Query", Kind: schema.TypeKindObject}
	for _, f := range statusFields() {
		queryType.AddField(f)
	}
	for _, f := range queryFields {
		queryType.AddField(f)
	}
	merged.AddType(queryType)

	if len(mutationFields) > 0 {
		mutationType := &schema.Type{Name: "Mutation", Kind: schema.TypeKindObject}
		for _, f := range mutationFields {
			mutationType.AddField(f)
		}
		merged.AddType(mutationType)
		merged.MutationType = "Mutation"
	}

	cfg := &federation.Configuration{
		Schema:   merged,
		Mappings: mappings,
		Services: included,
		BuiltAt:  time.Now(),
	}

	if err := language.ValidateSDL("federated", schema.Render(merged)); err != nil {
		return nil, nil, err
	}
	executable, err := gqlrt.Build(cfg, m.resolver)
	if err != nil {
		return nil, nil, err
	}
	return &Snapshot{Config: cfg, Executable: executable}, included, nil
}

func (m *Manager) recordOutcome(result BuildResult, err error) {
	o := &BuildOutcome{Result: result, At: time.Now()}
	if err != nil {
		o.Error = err.Error()
	}
	m.outcome.Store(o)
}

// Snapshot returns the currently published snapshot, or nil before the
// first build. Never blocks on the build lock.
func (m *Manager) Snapshot() *Snapshot { return m.active.Load() }

// GetSchema returns the active configuration, or nil before the first
// build.
func (m *Manager) GetSchema() *federation.Configuration {
	if snap := m.active.Load(); snap != nil {
		return snap.Config
	}
	return nil
}

// LastBuildOutcome returns the most recent rebuild outcome, or nil if no
// build ever ran.
func (m *Manager) LastBuildOutcome() *BuildOutcome { return m.outcome.Load() }

// GetHealthStatus reports the serving state from the published snapshot.
func (m *Manager) GetHealthStatus() HealthStatus {
	snap := m.active.Load()
	h := HealthStatus{Status: StatusEmpty}
	if snap == nil {
		return h
	}
	if snap.Config.Fallback {
		h.Status = StatusDegraded
	} else {
		h.Status = StatusReady
		h.MeshConfigured = true
	}
	h.ServicesCount = len(snap.Config.Services)
	h.LastUpdate = snap.Config.BuiltAt
	if o := m.outcome.Load(); o != nil {
		h.LastUpdate = o.At
	}
	return h
}

// GetStats reports service names, count, and the last build timestamp.
func (m *Manager) GetStats() Stats {
	snap := m.active.Load()
	if snap == nil {
		return Stats{Services: []string{}}
	}
	return Stats{
		ServicesCount: len(snap.Config.Services),
		Services:      snap.Config.ServiceNames(),
		LastBuild:     snap.Config.BuiltAt,
	}
}
