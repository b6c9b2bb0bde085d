// Package gqlrt lowers a federated configuration into an executable
// graphql-go schema. Every root field is bound to a resolver closure
// parameterized by its immutable FieldMapping, so executing against a
// published snapshot never touches mesh state.
package gqlrt

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/graphgate/graphgate/internal/federation"
	"github.com/graphgate/graphgate/internal/resttp"
	"github.com/graphgate/graphgate/internal/schema"
)

// jsonScalar passes arbitrary structured data through unchanged in both
// directions.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        schema.ScalarJSON,
	Description: "Arbitrary structured data passed through from the backing REST service.",
	Serialize:   func(v any) any { return v },
	ParseValue:  func(v any) any { return v },
	ParseLiteral: func(node ast.Value) any {
		return parseLiteral(node)
	},
})

func parseLiteral(node ast.Value) any {
	switch v := node.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		return v.Value
	case *ast.FloatValue:
		return v.Value
	case *ast.ListValue:
		out := make([]any, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, parseLiteral(item))
		}
		return out
	case *ast.ObjectValue:
		out := map[string]any{}
		for _, field := range v.Fields {
			out[field.Name.Value] = parseLiteral(field.Value)
		}
		return out
	default:
		return nil
	}
}

// builder carries the per-build type registry.
type builder struct {
	cfg      *federation.Configuration
	resolver *resttp.Resolver
	types    map[string]graphql.Type
}

// Build lowers cfg into an executable schema. The returned schema is
// immutable and safe for concurrent execution; a failure here is a merge
// failure from the mesh manager's point of view.
func Build(cfg *federation.Configuration, resolver *resttp.Resolver) (*graphql.Schema, error) {
	b := &builder{
		cfg:      cfg,
		resolver: resolver,
		types: map[string]graphql.Type{
			schema.ScalarString:  graphql.String,
			schema.ScalarInt:     graphql.Int,
			schema.ScalarFloat:   graphql.Float,
			schema.ScalarBoolean: graphql.Boolean,
			schema.ScalarID:      graphql.ID,
			schema.ScalarJSON:    jsonScalar,
		},
	}

	for name, t := range cfg.Schema.Types {
		if schema.IsBuiltinScalar(name) || name == cfg.Schema.QueryType || name == cfg.Schema.MutationType {
			continue
		}
		b.types[name] = b.lowerNamedType(t)
	}

	query := b.lowerRootType(cfg.Schema.GetQueryType())
	if query == nil {
		return nil, fmt.Errorf("gqlrt: configuration has no query type")
	}
	schemaConfig := graphql.SchemaConfig{Query: query}
	if mutation := cfg.Schema.GetMutationType(); mutation != nil && len(mutation.Fields) > 0 {
		schemaConfig.Mutation = b.lowerRootType(mutation)
	}

	executable, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return nil, fmt.Errorf("gqlrt: assemble executable schema: %w", err)
	}
	return &executable, nil
}

func (b *builder) lowerNamedType(t *schema.Type) graphql.Type {
	switch t.Kind {
	case schema.TypeKindEnum:
		values := graphql.EnumValueConfigMap{}
		for _, v := range t.EnumValues {
			value := v.Value
			if value == "" {
				value = v.Name
			}
			values[v.Name] = &graphql.EnumValueConfig{Value: value, Description: v.Description}
		}
		return graphql.NewEnum(graphql.EnumConfig{Name: t.Name, Description: t.Description, Values: values})
	case schema.TypeKindScalar:
		return graphql.NewScalar(graphql.ScalarConfig{
			Name:        t.Name,
			Description: t.Description,
			Serialize:   func(v any) any { return v },
			ParseValue:  func(v any) any { return v },
			ParseLiteral: func(node ast.Value) any {
				return parseLiteral(node)
			},
		})
	default:
		return b.lowerObject(t)
	}
}

// lowerObject defers field construction with a thunk so objects can
// reference each other in any order.
func (b *builder) lowerObject(t *schema.Type) graphql.Type {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        t.Name,
		Description: t.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, f := range t.Fields {
				fields[f.Name] = &graphql.Field{
					Name:        f.Name,
					Description: f.Description,
					Type:        b.lowerOutputRef(f.Type),
				}
			}
			return fields
		}),
	})
}

// lowerRootType builds a root operation type whose fields proxy to REST
// operations via their mappings. Fields without a mapping are the built-in
// introspective status fields.
func (b *builder) lowerRootType(t *schema.Type) *graphql.Object {
	if t == nil {
		return nil
	}
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        t.Name,
		Description: t.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, f := range t.Fields {
				fields[f.Name] = b.lowerRootField(f)
			}
			return fields
		}),
	})
}

func (b *builder) lowerRootField(f *schema.Field) *graphql.Field {
	out := &graphql.Field{
		Name:        f.Name,
		Description: f.Description,
		Type:        b.lowerOutputRef(f.Type),
		Args:        graphql.FieldConfigArgument{},
	}
	for _, arg := range f.Arguments {
		out.Args[arg.Name] = &graphql.ArgumentConfig{
			Type:         b.lowerInputRef(arg.Type),
			Description:  arg.Description,
			DefaultValue: arg.DefaultValue,
		}
	}

	if mapping, ok := b.cfg.Mappings[f.Name]; ok {
		resolver := b.resolver
		out.Resolve = func(p graphql.ResolveParams) (any, error) {
			return resolver.Resolve(p.Context, mapping, p.Args)
		}
		return out
	}

	// Introspective fields resolve locally from the configuration snapshot.
	cfg := b.cfg
	switch f.Name {
	case "status":
		out.Resolve = func(p graphql.ResolveParams) (any, error) {
			if cfg.Fallback {
				return "degraded", nil
			}
			return "ready", nil
		}
	case "discoveredServices":
		out.Resolve = func(p graphql.ResolveParams) (any, error) {
			return cfg.ServiceNames(), nil
		}
	}
	return out
}

func (b *builder) lowerOutputRef(ref *schema.TypeRef) graphql.Output {
	if ref == nil {
		return jsonScalar
	}
	switch ref.Kind {
	case schema.TypeRefKindNonNull:
		return graphql.NewNonNull(b.lowerOutputRef(ref.OfType))
	case schema.TypeRefKindList:
		return graphql.NewList(b.lowerOutputRef(ref.OfType))
	default:
		if t, ok := b.types[ref.Named]; ok {
			return t
		}
		return jsonScalar
	}
}

// lowerInputRef is lowerOutputRef restricted to input positions: a named
// object type cannot appear as an argument, so it degrades to the JSON
// scalar.
func (b *builder) lowerInputRef(ref *schema.TypeRef) graphql.Input {
	if ref == nil {
		return jsonScalar
	}
	switch ref.Kind {
	case schema.TypeRefKindNonNull:
		return graphql.NewNonNull(b.lowerInputRef(ref.OfType))
	case schema.TypeRefKindList:
		return graphql.NewList(b.lowerInputRef(ref.OfType))
	default:
		t, ok := b.types[ref.Named]
		if !ok {
			return jsonScalar
		}
		if _, isObject := t.(*graphql.Object); isObject {
			return jsonScalar
		}
		return t
	}
}
