package typemap

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate/graphgate/internal/schema"
)

func typed(name string, format string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("", &openapi3.Schema{
		Type:   &openapi3.Types{name},
		Format: format,
	})
}

func TestMapPrimitives(t *testing.T) {
	cases := []struct {
		name string
		in   *openapi3.SchemaRef
		want string
	}{
		{"string", typed("string", ""), schema.ScalarString},
		{"string date flattens", typed("string", "date"), schema.ScalarString},
		{"string date-time flattens", typed("string", "date-time"), schema.ScalarString},
		{"integer", typed("integer", ""), schema.ScalarInt},
		{"integer int64", typed("integer", "int64"), schema.ScalarInt},
		{"number", typed("number", ""), schema.ScalarFloat},
		{"number float", typed("number", "float"), schema.ScalarFloat},
		{"boolean", typed("boolean", ""), schema.ScalarBoolean},
		{"unknown falls back to string", typed("file", ""), schema.ScalarString},
		{"nil ref", nil, schema.ScalarString},
		{"nil value", openapi3.NewSchemaRef("", nil), schema.ScalarString},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref := Map(tc.in, "Svc")
			require.Equal(t, schema.TypeRefKindNamed, ref.Kind)
			assert.Equal(t, tc.want, ref.Named)
		})
	}
}

func TestMapReference(t *testing.T) {
	in := openapi3.NewSchemaRef("#/components/schemas/Order", &openapi3.Schema{})
	ref := Map(in, "OrderApi")
	require.Equal(t, schema.TypeRefKindNamed, ref.Kind)
	assert.Equal(t, "OrderApiOrder", ref.Named)

	legacy := openapi3.NewSchemaRef("#/definitions/order-item", &openapi3.Schema{})
	assert.Equal(t, "OrderApiOrderItem", Map(legacy, "OrderApi").Named)
}

func TestMapArray(t *testing.T) {
	in := openapi3.NewSchemaRef("", &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: typed("integer", ""),
	})
	ref := Map(in, "Svc")
	require.Equal(t, schema.TypeRefKindList, ref.Kind)
	assert.Equal(t, schema.ScalarInt, ref.OfType.Named)
}

func TestMapInlineObjectCollapsesToJSON(t *testing.T) {
	in := openapi3.NewSchemaRef("", &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"name": typed("string", ""),
		},
	})
	assert.Equal(t, schema.ScalarJSON, Map(in, "Svc").Named)

	// Properties without an explicit object type still collapse.
	noType := openapi3.NewSchemaRef("", &openapi3.Schema{
		Properties: openapi3.Schemas{"name": typed("string", "")},
	})
	assert.Equal(t, schema.ScalarJSON, Map(noType, "Svc").Named)
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"order-api":  "OrderApi",
		"order_api":  "OrderApi",
		"orders":     "Orders",
		"Order":      "Order",
		"user.v2":    "UserV2",
		"  weird  ":  "Weird",
		"":           "",
		"UserOrders": "UserOrders",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), "input %q", in)
	}
}

func TestServicePrefixDeterministic(t *testing.T) {
	assert.Equal(t, "OrderApi", ServicePrefix("order-api"))
	assert.Equal(t, "OrderApi", ServicePrefix("Order-API"))
	assert.Equal(t, ServicePrefix("inventory"), ServicePrefix("inventory"))
}

func TestEnumMemberName(t *testing.T) {
	assert.Equal(t, "PENDING", EnumMemberName("pending"))
	assert.Equal(t, "SHIPPED_OUT", EnumMemberName("shipped-out"))
	assert.Equal(t, "IN_PROGRESS", EnumMemberName("in progress"))
}

func TestRefName(t *testing.T) {
	assert.Equal(t, "Order", RefName("#/components/schemas/Order"))
	assert.Equal(t, "Order", RefName("#/definitions/Order"))
	assert.Equal(t, "", RefName(""))
	assert.Equal(t, "", RefName("#/components/schemas/"))
}
