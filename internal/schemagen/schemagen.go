// Package schemagen turns one service's OpenAPI document into federated
// schema parts: named type definitions, root query/mutation fields, and the
// field-to-operation mapping table the resolver executes against.
//
// Generation is deterministic: paths, methods, and reusable schemas are
// visited in a fixed order, so running the generator twice on identical
// input produces identical output.
package schemagen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/graphgate/graphgate/internal/federation"
	"github.com/graphgate/graphgate/internal/schema"
	"github.com/graphgate/graphgate/internal/typemap"
)

// Result holds everything generated from one service. Non-fatal problems
// (a skipped path, a malformed component) are collected in Errors; the
// remaining parts are still valid and mergeable.
type Result struct {
	Service  string
	Prefix   string
	Types    map[string]*schema.Type
	Query    []*schema.Field
	Mutation []*schema.Field
	Mappings map[string]federation.FieldMapping
	Errors   error
}

// methodOrder fixes the visit order of operations under one path.
var methodOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// actionPrefix maps an HTTP method to the verb prefix of the generated
// field name.
var actionPrefix = map[string]string{
	"GET":    "Get",
	"POST":   "Create",
	"PUT":    "Update",
	"PATCH":  "Update",
	"DELETE": "Delete",
}

// Generate produces the schema parts for one service. It returns an error
// only when the document is entirely absent; every lesser defect degrades
// to a partial result with Errors populated.
func Generate(svc federation.ServiceDescriptor) (*Result, error) {
	if svc.Document == nil {
		return nil, fmt.Errorf("schemagen: service %q has no document", svc.Name)
	}
	prefix := typemap.ServicePrefix(svc.Name)
	res := &Result{
		Service:  svc.Name,
		Prefix:   prefix,
		Types:    map[string]*schema.Type{},
		Mappings: map[string]federation.FieldMapping{},
	}
	var errs *multierror.Error

	errs = multierror.Append(errs, generateTypes(res, svc.Document, prefix)...)
	errs = multierror.Append(errs, generateFields(res, svc, prefix)...)

	res.Errors = errs.ErrorOrNil()
	return res, nil
}

// generateTypes emits one federated type per reusable schema definition.
// Definitions with an enum constraint become enum types; definitions with
// declared properties become object types; anything else becomes a
// passthrough scalar so that $ref targets always exist in the merged
// schema.
func generateTypes(res *Result, doc *openapi3.T, prefix string) []error {
	var errs []error

	defs := reusableSchemas(doc)
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := defs[name]
		typeName := prefix + typemap.NormalizeName(name)
		if ref == nil || ref.Value == nil {
			errs = append(errs, fmt.Errorf("schemagen: skipping schema %q: empty definition", name))
			continue
		}
		sch := ref.Value
		switch {
		case len(sch.Enum) > 0:
			res.Types[typeName] = buildEnum(typeName, sch)
		case len(sch.Properties) > 0:
			res.Types[typeName] = buildObject(typeName, sch, prefix)
		default:
			res.Types[typeName] = &schema.Type{
				Name:        typeName,
				Kind:        schema.TypeKindScalar,
				Description: sch.Description,
			}
		}
	}
	return errs
}

func buildEnum(name string, sch *openapi3.Schema) *schema.Type {
	t := &schema.Type{Name: name, Kind: schema.TypeKindEnum, Description: sch.Description}
	seen := map[string]bool{}
	for _, literal := range sch.Enum {
		raw := fmt.Sprint(literal)
		member := typemap.EnumMemberName(raw)
		if member == "" || seen[member] {
			continue
		}
		seen[member] = true
		t.EnumValues = append(t.EnumValues, &schema.EnumValue{Name: member, Value: raw})
	}
	return t
}

func buildObject(name string, sch *openapi3.Schema, prefix string) *schema.Type {
	t := &schema.Type{Name: name, Kind: schema.TypeKindObject, Description: sch.Description}
	props := make([]string, 0, len(sch.Properties))
	for prop := range sch.Properties {
		props = append(props, prop)
	}
	sort.Strings(props)
	for _, prop := range props {
		t.AddField(&schema.Field{
			Name: prop,
			Type: typemap.Map(sch.Properties[prop], prefix),
		})
	}
	return t
}

// generateFields synthesizes one query field per GET operation and one
// mutation field per POST/PUT/PATCH/DELETE operation, recording a
// FieldMapping row for each.
func generateFields(res *Result, svc federation.ServiceDescriptor, prefix string) []error {
	doc := svc.Document
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return []error{fmt.Errorf("schemagen: service %q: document has no paths", svc.Name)}
	}
	var errs []error

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for p := range pathMap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := pathMap[path]
		if item == nil {
			continue
		}
		ops := item.Operations()
		for _, method := range methodOrder {
			op, ok := ops[method]
			if !ok || op == nil {
				continue
			}
			field, mapping, err := buildOperation(res, svc, prefix, path, method, item, op)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if method == "GET" {
				res.Query = append(res.Query, field)
			} else {
				res.Mutation = append(res.Mutation, field)
			}
			res.Mappings[mapping.FieldName] = mapping
		}
	}
	return errs
}

func buildOperation(res *Result, svc federation.ServiceDescriptor, prefix, path, method string, item *openapi3.PathItem, op *openapi3.Operation) (*schema.Field, federation.FieldMapping, error) {
	name := fieldName(res, prefix, method, path)
	if name == "" {
		return nil, federation.FieldMapping{}, fmt.Errorf("schemagen: service %q: cannot derive a unique field name for %s %s", svc.Name, method, path)
	}

	field := &schema.Field{
		Name:        name,
		Description: op.Summary,
		Type:        responseType(op, prefix),
	}

	mapping := federation.FieldMapping{
		FieldName:    name,
		HTTPMethod:   method,
		PathTemplate: path,
		Service:      svc.Name,
		BaseURL:      svc.BaseURL,
	}

	for _, pref := range mergedParameters(item, op) {
		p := pref.Value
		if p == nil {
			continue
		}
		loc := federation.ParameterLocation(p.In)
		if loc != federation.InPath && loc != federation.InQuery {
			// Header and cookie parameters never cross the boundary;
			// header forwarding is the resolver allow-list's job.
			continue
		}
		required := p.Required || loc == federation.InPath
		argType := typemap.Map(p.Schema, prefix)
		if required {
			argType = schema.NonNullType(argType)
		}
		field.AddArgument(&schema.InputValue{Name: p.Name, Description: p.Description, Type: argType})
		mapping.Parameters = append(mapping.Parameters, federation.RequestParameter{
			Name:     p.Name,
			In:       loc,
			Type:     argType,
			Required: required,
		})
	}

	if method != "GET" {
		if bodyType, ok := requestBodyType(op, prefix); ok {
			desc := "Request body."
			if bodyType != schema.ScalarJSON {
				desc = "Request body, shaped like " + bodyType + "."
			}
			field.AddArgument(&schema.InputValue{
				Name:        "input",
				Description: desc,
				Type:        schema.NamedType(schema.ScalarJSON),
			})
			mapping.HasBody = true
			mapping.BodyType = bodyType
		}
	}

	return field, mapping, nil
}

// fieldName derives the synthesized field name: service prefix, action verb,
// then the Pascal-cased literal path segments (parameter segments skipped).
// If two operations of the same service collapse to the same name, the later
// one (in deterministic visit order) is disambiguated with "By" plus its
// parameter segment names; an unresolvable collision yields "".
func fieldName(res *Result, prefix, method, path string) string {
	base := prefix + actionPrefix[method] + pascalSegments(path, false)
	if !res.nameTaken(base) {
		return base
	}
	withParams := base + "By" + pascalSegments(path, true)
	if !res.nameTaken(withParams) {
		return withParams
	}
	return ""
}

func (r *Result) nameTaken(name string) bool {
	for _, f := range r.Query {
		if f.Name == name {
			return true
		}
	}
	for _, f := range r.Mutation {
		if f.Name == name {
			return true
		}
	}
	return false
}

// pascalSegments concatenates the normalized path segments. With
// paramsOnly=false it keeps literal segments and skips {param} segments;
// with paramsOnly=true it keeps only the parameter names.
func pascalSegments(path string, paramsOnly bool) string {
	var b strings.Builder
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		isParam := strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
		if isParam != paramsOnly {
			continue
		}
		if isParam {
			seg = strings.Trim(seg, "{}")
		}
		b.WriteString(typemap.NormalizeName(seg))
	}
	return b.String()
}

// responseType derives the field's return type from the first success
// response that declares a JSON body, defaulting to String.
func responseType(op *openapi3.Operation, prefix string) *schema.TypeRef {
	if op.Responses != nil {
		for _, status := range []string{"200", "201", "204"} {
			ref := op.Responses.Value(status)
			if ref == nil || ref.Value == nil {
				continue
			}
			if media := jsonContent(ref.Value.Content); media != nil && media.Schema != nil {
				return typemap.Map(media.Schema, prefix)
			}
		}
	}
	return schema.NamedType(schema.ScalarString)
}

// requestBodyType reports whether the operation declares a JSON request
// body, and the federated name of the body's schema when it has one.
func requestBodyType(op *openapi3.Operation, prefix string) (string, bool) {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return "", false
	}
	media := jsonContent(op.RequestBody.Value.Content)
	if media == nil || media.Schema == nil {
		return "", false
	}
	if name := typemap.RefName(media.Schema.Ref); name != "" {
		return prefix + typemap.NormalizeName(name), true
	}
	return schema.ScalarJSON, true
}

func jsonContent(content openapi3.Content) *openapi3.MediaType {
	if content == nil {
		return nil
	}
	if media, ok := content["application/json"]; ok {
		return media
	}
	for ct, media := range content {
		if strings.Contains(ct, "json") {
			return media
		}
	}
	return nil
}

// mergedParameters returns path-item level parameters followed by
// operation level ones, preserving declaration order.
func mergedParameters(item *openapi3.PathItem, op *openapi3.Operation) openapi3.Parameters {
	if len(item.Parameters) == 0 {
		return op.Parameters
	}
	merged := make(openapi3.Parameters, 0, len(item.Parameters)+len(op.Parameters))
	merged = append(merged, item.Parameters...)
	merged = append(merged, op.Parameters...)
	return merged
}

// reusableSchemas collects the document's reusable schema definitions. The
// canonical 3.x location is components.schemas; documents that still carry
// a top-level "definitions" object (pre-conversion 2.0 remnants) have those
// merged in as well, with components taking precedence.
func reusableSchemas(doc *openapi3.T) openapi3.Schemas {
	out := openapi3.Schemas{}
	if raw, ok := doc.Extensions["definitions"]; ok {
		if legacy := decodeLegacyDefinitions(raw); legacy != nil {
			for name, ref := range legacy {
				out[name] = ref
			}
		}
	}
	if doc.Components != nil {
		for name, ref := range doc.Components.Schemas {
			out[name] = ref
		}
	}
	return out
}

func decodeLegacyDefinitions(raw any) openapi3.Schemas {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := openapi3.Schemas{}
	for name, v := range m {
		sch := openapi3.NewSchema()
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if err := sch.UnmarshalJSON(data); err != nil {
			continue
		}
		out[name] = openapi3.NewSchemaRef("", sch)
	}
	return out
}
