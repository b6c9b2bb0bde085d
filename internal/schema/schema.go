package schema

// Schema is the merged federated type system: every named type keyed by
// name plus the root operation type names.
type Schema struct {
	QueryType    string
	MutationType string
	Types        map[string]*Type
	Description  string
}

// NewSchema returns an empty schema pre-populated with the built-in scalars.
func NewSchema(description string) *Schema {
	s := &Schema{
		QueryType:   "Query",
		Types:       map[string]*Type{},
		Description: description,
	}
	for _, t := range builtinScalars {
		s.Types[t.Name] = t
	}
	return s
}

// AddType registers t, replacing any previous type of the same name.
func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

// GetQueryType returns the root query type (nil if absent).
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (nil if absent).
func (s *Schema) GetMutationType() *Type {
	if s.MutationType == "" {
		return nil
	}
	return s.Types[s.MutationType]
}

// TypeKind is the kind of a named type. OpenAPI generation only ever emits
// scalars, objects and enums; there is deliberately no interface or union
// kind here.
type TypeKind string

const (
	TypeKindScalar TypeKind = "SCALAR"
	TypeKindObject TypeKind = "OBJECT"
	TypeKindEnum   TypeKind = "ENUM"
)

// Type is a named federated type.
type Type struct {
	Name        string
	Kind        TypeKind
	Description string
	Fields      []*Field     // OBJECT only
	EnumValues  []*EnumValue // ENUM only
}

// Field returns the field with the given name, if any.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddField appends f to the object's field list.
func (t *Type) AddField(f *Field) *Type {
	t.Fields = append(t.Fields, f)
	return t
}

// Field is one field of an object type.
type Field struct {
	Name        string
	Description string
	Type        *TypeRef
	Arguments   []*InputValue
}

// AddArgument appends an argument definition to the field.
func (f *Field) AddArgument(v *InputValue) *Field {
	f.Arguments = append(f.Arguments, v)
	return f
}

// EnumValue is one member of an enum type. Value keeps the backend's
// original literal so runtime values serialize to the right member.
type EnumValue struct {
	Name        string
	Value       string
	Description string
}

// InputValue is an argument definition.
type InputValue struct {
	Name         string
	Description  string
	Type         *TypeRef
	DefaultValue any
}

// TypeRef references a type, possibly wrapped with List or NonNull.
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // LIST and NON_NULL
	Named  string   // NAMED
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }

// IsNonNull reports whether the reference is wrapped with Non-Null.
func (t *TypeRef) IsNonNull() bool { return t != nil && t.Kind == TypeRefKindNonNull }

// Unwrap removes one layer of List or Non-Null wrapping.
func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

// GetNamedType returns the innermost named type.
func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}
