package federation

import (
	"sort"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/graphgate/graphgate/internal/schema"
)

// ServiceDescriptor describes one discovered backend service. Descriptors are
// produced by the discovery layer and are read-only to the mesh: a discovery
// cycle supersedes the whole value, individual fields are never mutated.
type ServiceDescriptor struct {
	Name        string
	Namespace   string
	BaseURL     string
	HasOpenAPI  bool
	Document    *openapi3.T
	Fingerprint string
	LastUpdated time.Time
	Ready       bool
}

// Usable reports whether the service can contribute to a schema build.
func (s ServiceDescriptor) Usable() bool {
	return s.Ready && s.HasOpenAPI && s.Document != nil
}

// ParameterLocation is where a request parameter is carried on the wire.
type ParameterLocation string

const (
	InPath  ParameterLocation = "path"
	InQuery ParameterLocation = "query"
)

// RequestParameter is one declared parameter of a proxied REST operation.
type RequestParameter struct {
	Name     string
	In       ParameterLocation
	Type     *schema.TypeRef
	Required bool
}

// FieldMapping links one federated schema field to the REST operation it
// proxies. Mappings are created during schema generation and regenerated
// wholesale whenever the owning service's document changes; they carry
// everything the resolver needs so the OpenAPI document is never re-read at
// query time.
type FieldMapping struct {
	FieldName    string
	HTTPMethod   string
	PathTemplate string
	Service      string
	BaseURL      string
	Parameters   []RequestParameter
	HasBody      bool
	BodyType     string
}

// Parameter returns the declared parameter with the given name, if any.
func (m FieldMapping) Parameter(name string) (RequestParameter, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return RequestParameter{}, false
}

// Configuration is the aggregate that gets atomically swapped into service:
// the merged type system, the root field sets, and the complete field
// mapping table. A published configuration is immutable; rebuilds construct
// a brand-new value and swap the active pointer.
type Configuration struct {
	Schema   *schema.Schema
	Mappings map[string]FieldMapping
	Services []string
	BuiltAt  time.Time
	Fallback bool
}

// ServiceNames returns a sorted copy of the contributing service names.
func (c *Configuration) ServiceNames() []string {
	out := make([]string, len(c.Services))
	copy(out, c.Services)
	sort.Strings(out)
	return out
}
