package schema

// Built-in scalar names.
const (
	ScalarString  = "String"
	ScalarInt     = "Int"
	ScalarFloat   = "Float"
	ScalarBoolean = "Boolean"
	ScalarID      = "ID"
	// ScalarJSON is the opaque structured type that anonymous inline
	// objects and request bodies collapse to.
	ScalarJSON = "JSON"
)

var stringType = &Type{
	Name:        ScalarString,
	Kind:        TypeKindScalar,
	Description: "The `String` scalar type represents textual data, represented as UTF-8 character sequences.",
}

var intType = &Type{
	Name:        ScalarInt,
	Kind:        TypeKindScalar,
	Description: "The `Int` scalar type represents non-fractional signed whole numeric values.",
}

var floatType = &Type{
	Name:        ScalarFloat,
	Kind:        TypeKindScalar,
	Description: "The `Float` scalar type represents signed double-precision fractional values.",
}

var booleanType = &Type{
	Name:        ScalarBoolean,
	Kind:        TypeKindScalar,
	Description: "The `Boolean` scalar type represents `true` or `false`.",
}

var idType = &Type{
	Name:        ScalarID,
	Kind:        TypeKindScalar,
	Description: "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.",
}

var jsonType = &Type{
	Name:        ScalarJSON,
	Kind:        TypeKindScalar,
	Description: "The `JSON` scalar type represents arbitrary structured data as passed through from the backing REST service.",
}

var builtinScalars = []*Type{stringType, intType, floatType, booleanType, idType, jsonType}

// IsBuiltinScalar reports whether name is one of the pre-registered scalars.
func IsBuiltinScalar(name string) bool {
	switch name {
	case ScalarString, ScalarInt, ScalarFloat, ScalarBoolean, ScalarID, ScalarJSON:
		return true
	}
	return false
}
