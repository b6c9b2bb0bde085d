// Package discovery feeds the mesh manager with the current backend
// service set. The polling loop and provider seam live here; richer
// discovery backends (a cluster API watcher, a registry client) implement
// Provider without the mesh ever knowing.
package discovery

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/graphgate/graphgate/internal/federation"
	"github.com/graphgate/graphgate/internal/mesh"
	"github.com/graphgate/graphgate/internal/openapi"
)

// Provider produces the candidate service set for one discovery cycle.
type Provider interface {
	Services(ctx context.Context) []federation.ServiceDescriptor
}

// StaticProvider probes a fixed name -> base URL mapping. Each cycle it
// fetches every backend's interface document from the conventional paths;
// a backend that yields no document is still reported, just with
// HasOpenAPI unset, so operators can see it in stats while it contributes
// nothing to the schema.
type StaticProvider struct {
	endpoints map[string]string
	fetcher   *openapi.Fetcher
	log       *zap.Logger
}

// NewStaticProvider creates a provider over the given endpoint mapping.
func NewStaticProvider(endpoints map[string]string, fetcher *openapi.Fetcher, log *zap.Logger) *StaticProvider {
	if log == nil {
		log = zap.NewNop()
	}
	cp := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		cp[k] = v
	}
	return &StaticProvider{endpoints: cp, fetcher: fetcher, log: log}
}

// Services probes every configured backend once.
func (p *StaticProvider) Services(ctx context.Context) []federation.ServiceDescriptor {
	names := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]federation.ServiceDescriptor, 0, len(names))
	for _, name := range names {
		baseURL := p.endpoints[name]
		desc := federation.ServiceDescriptor{
			Name:        name,
			BaseURL:     baseURL,
			LastUpdated: time.Now(),
			Ready:       true,
		}
		doc, err := p.fetcher.Fetch(ctx, baseURL)
		if err != nil {
			p.log.Debug("no interface document",
				zap.String("service", name), zap.String("baseUrl", baseURL), zap.Error(err))
		} else {
			desc.HasOpenAPI = true
			desc.Document = doc.Spec
			desc.Fingerprint = doc.Fingerprint
		}
		out = append(out, desc)
	}
	return out
}

// Loop periodically reconciles discovery results into the mesh manager.
type Loop struct {
	provider Provider
	manager  *mesh.Manager
	interval time.Duration
	log      *zap.Logger
	force    chan chan struct{}
}

// NewLoop creates a discovery loop. interval <= 0 defaults to 30s.
func NewLoop(provider Provider, manager *mesh.Manager, interval time.Duration, log *zap.Logger) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		provider: provider,
		manager:  manager,
		interval: interval,
		log:      log,
		force:    make(chan chan struct{}),
	}
}

// Run ticks until ctx is cancelled. The first cycle runs immediately so the
// gateway does not serve the empty state for a full interval after start.
func (l *Loop) Run(ctx context.Context) {
	l.tick(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		case done := <-l.force:
			l.tick(ctx)
			close(done)
		}
	}
}

// Force runs one discovery cycle out of band and waits for it to finish.
func (l *Loop) Force(ctx context.Context) {
	done := make(chan struct{})
	select {
	case l.force <- done:
		select {
		case <-done:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
}

func (l *Loop) tick(ctx context.Context) {
	services := l.provider.Services(ctx)
	if changed := l.manager.UpdateConfiguration(ctx, services); changed {
		l.log.Info("discovery cycle applied",
			zap.Int("services", len(services)))
	}
}
