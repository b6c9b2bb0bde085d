package mesh

import (
	"time"

	"github.com/graphgate/graphgate/internal/federation"
	"github.com/graphgate/graphgate/internal/gqlrt"
	"github.com/graphgate/graphgate/internal/schema"
)

// statusFields are the introspective fields every published Query type
// carries. The fallback schema exposes nothing else, so the federation is
// never left completely unservable once it has published anything.
func statusFields() []*schema.Field {
	return []*schema.Field{
		{
			Name:        "status",
			Description: "Current serving state of the federation.",
			Type:        schema.NonNullType(schema.NamedType(schema.ScalarString)),
		},
		{
			Name:        "discoveredServices",
			Description: "Names of the services contributing to the active schema.",
			Type:        schema.ListType(schema.NamedType(schema.ScalarString)),
		},
	}
}

// fallbackConfiguration builds the minimal built-in schema served when no
// usable backend exists or the very first build failed.
func fallbackConfiguration() *federation.Configuration {
	s := schema.NewSchema("Minimal fallback schema: no backend services are federated.")
	queryType := &schema.Type{Name: "Query", Kind: schema.TypeKindObject}
	for _, f := range statusFields() {
		queryType.AddField(f)
	}
	s.AddType(queryType)
	return &federation.Configuration{
		Schema:   s,
		Mappings: map[string]federation.FieldMapping{},
		Services: []string{},
		BuiltAt:  time.Now(),
		Fallback: true,
	}
}

// publishFallback swaps the fallback schema in. The fallback build cannot
// fail: it references nothing outside the built-in scalars.
func (m *Manager) publishFallback() {
	cfg := fallbackConfiguration()
	executable, err := gqlrt.Build(cfg, m.resolver)
	if err != nil {
		// Static input; a failure here is a programming error.
		panic("mesh: fallback schema must always build: " + err.Error())
	}
	m.active.Store(&Snapshot{Config: cfg, Executable: executable})
}
