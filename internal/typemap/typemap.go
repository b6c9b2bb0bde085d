// Package typemap converts OpenAPI schema nodes into federated type
// references. The mapping is total: every input maps to some type, with
// String as the terminal fallback, so generation never fails on an exotic
// schema node.
package typemap

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/graphgate/graphgate/internal/schema"
)

// Map resolves an OpenAPI schema node to a federated type reference.
// prefix is the owning service's name prefix; it namespaces every reusable
// schema name so merged schemas cannot collide.
//
// Resolution order is fixed for reproducibility:
//  1. $ref          -> prefixed, normalized referenced name
//  2. string        -> String (date/date-time formats intentionally flatten
//     to String; a dedicated temporal scalar is a known simplification)
//  3. integer       -> Int; number -> Float (any format)
//  4. boolean       -> Boolean
//  5. array         -> list of Map(items)
//  6. inline object -> JSON (anonymous object types are not synthesized)
//  7. anything else -> String
func Map(ref *openapi3.SchemaRef, prefix string) *schema.TypeRef {
	if ref == nil {
		return schema.NamedType(schema.ScalarString)
	}
	if name := RefName(ref.Ref); name != "" {
		return schema.NamedType(prefix + NormalizeName(name))
	}
	sch := ref.Value
	if sch == nil {
		return schema.NamedType(schema.ScalarString)
	}
	switch {
	case typeIs(sch, openapi3.TypeString):
		return schema.NamedType(schema.ScalarString)
	case typeIs(sch, openapi3.TypeInteger):
		return schema.NamedType(schema.ScalarInt)
	case typeIs(sch, openapi3.TypeNumber):
		return schema.NamedType(schema.ScalarFloat)
	case typeIs(sch, openapi3.TypeBoolean):
		return schema.NamedType(schema.ScalarBoolean)
	case typeIs(sch, openapi3.TypeArray):
		return schema.ListType(Map(sch.Items, prefix))
	case typeIs(sch, openapi3.TypeObject), len(sch.Properties) > 0:
		return schema.NamedType(schema.ScalarJSON)
	default:
		return schema.NamedType(schema.ScalarString)
	}
}

func typeIs(sch *openapi3.Schema, name string) bool {
	return sch.Type != nil && sch.Type.Is(name)
}

// RefName extracts the schema name from a JSON reference such as
// "#/components/schemas/Order" or "#/definitions/Order". It returns ""
// for an empty or non-local reference.
func RefName(ref string) string {
	if ref == "" {
		return ""
	}
	idx := strings.LastIndex(ref, "/")
	if idx < 0 || idx == len(ref)-1 {
		return ""
	}
	return ref[idx+1:]
}

// NormalizeName converts an arbitrary schema or service name to the
// federated naming convention: capitalized words, separators and other
// non-alphanumeric characters stripped. "order-api" and "order_api" both
// become "OrderApi".
func NormalizeName(name string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			if upperNext {
				b.WriteRune(r - ('a' - 'A'))
			} else {
				b.WriteRune(r)
			}
			upperNext = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
			upperNext = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			upperNext = true
		default:
			upperNext = true
		}
	}
	return b.String()
}

// ServicePrefix derives the deterministic per-service name prefix used to
// namespace every generated field and type.
func ServicePrefix(serviceName string) string {
	return NormalizeName(strings.ToLower(serviceName))
}

// EnumMemberName converts an enum literal to a federated enum member name:
// upper-cased with non-alphanumeric characters replaced by underscore.
func EnumMemberName(literal string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(literal) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
