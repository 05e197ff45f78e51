package schema

import "strings"

// Document is a schema file: reusable type declarations plus the
// schemas built from them.
type Document struct {
	Types   []TypeDecl    `toml:"types" yaml:"types" json:"types,omitempty"`
	Schemas []Description `toml:"schemas" yaml:"schemas" json:"schemas"`
}

type TypeKind string

const (
	TypeBlock  TypeKind = "block"
	TypeStruct TypeKind = "struct"
	TypeEnum   TypeKind = "enum"
	TypeAlias  TypeKind = "alias"
	TypeOpaque TypeKind = "opaque"
)

// TypeDecl declares a named non-primitive type.
//
// Blocks carry Fields. Enums carry Underlying, Members and Flags. Aliases
// carry Underlying only. Structs and opaque types are declared so that
// references to them are reported precisely instead of as unknown.
type TypeDecl struct {
	Name       string       `toml:"name" yaml:"name" json:"name"`
	Kind       TypeKind     `toml:"kind" yaml:"kind" json:"kind"`
	Underlying string       `toml:"underlying" yaml:"underlying" json:"underlying,omitempty"`
	Flags      bool         `toml:"flags" yaml:"flags" json:"flags,omitempty"`
	Members    []EnumMember `toml:"members" yaml:"members" json:"members,omitempty"`
	Fields     []FieldDesc  `toml:"fields" yaml:"fields" json:"fields,omitempty"`
}

type EnumMember struct {
	Name  string `toml:"name" yaml:"name" json:"name"`
	Value int64  `toml:"value" yaml:"value" json:"value"`
}

// Description is the ordered field list of one schema.
type Description struct {
	Name   string      `toml:"name" yaml:"name" json:"name"`
	ID     uint32      `toml:"id" yaml:"id" json:"id,omitempty"`
	View   bool        `toml:"view" yaml:"view" json:"view,omitempty"`
	Fields []FieldDesc `toml:"fields" yaml:"fields" json:"fields"`
}

// FieldDesc is one field descriptor. Type names a primitive, "string",
// or a declared type; a "[]" suffix makes it an array.
type FieldDesc struct {
	Name     string       `toml:"name" yaml:"name" json:"name"`
	Type     string       `toml:"type" yaml:"type" json:"type"`
	Array    *ArraySpec   `toml:"array" yaml:"array" json:"array,omitempty"`
	String   *StringSpec  `toml:"string" yaml:"string" json:"string,omitempty"`
	When     []ClauseDesc `toml:"when" yaml:"when" json:"when,omitempty"`
	Nullable bool         `toml:"nullable" yaml:"nullable" json:"nullable,omitempty"`
}

// ArraySpec modes: "fixed" (Count), "ref" (Ref), "prefixed" (Prefix),
// "to_end".
type ArraySpec struct {
	Mode   string `toml:"mode" yaml:"mode" json:"mode"`
	Count  int    `toml:"count" yaml:"count" json:"count,omitempty"`
	Ref    string `toml:"ref" yaml:"ref" json:"ref,omitempty"`
	Prefix string `toml:"prefix" yaml:"prefix" json:"prefix,omitempty"`
}

// StringSpec modes: "fixed" (Length), "ref" (Ref), "prefixed" (Prefix),
// "null_terminated".
type StringSpec struct {
	Mode   string `toml:"mode" yaml:"mode" json:"mode"`
	Length int    `toml:"length" yaml:"length" json:"length,omitempty"`
	Ref    string `toml:"ref" yaml:"ref" json:"ref,omitempty"`
	Prefix string `toml:"prefix" yaml:"prefix" json:"prefix,omitempty"`
}

// ClauseDesc ops: "eq", "ne", "has_flag", "lacks_flag".
type ClauseDesc struct {
	Field  string   `toml:"field" yaml:"field" json:"field"`
	Op     string   `toml:"op" yaml:"op" json:"op"`
	Values []string `toml:"values" yaml:"values" json:"values"`
}

// Field starts a descriptor literal; the modifier methods below return
// updated copies so schemas can be written inline:
//
//	schema.Field("Items", "int[]").FixedArray(4)
func Field(name, typ string) FieldDesc {
	return FieldDesc{Name: name, Type: typ}
}

func (f FieldDesc) FixedArray(n int) FieldDesc {
	f.Array = &ArraySpec{Mode: "fixed", Count: n}
	return f
}

func (f FieldDesc) RefArray(field string) FieldDesc {
	f.Array = &ArraySpec{Mode: "ref", Ref: field}
	return f
}

func (f FieldDesc) PrefixedArray(prefix string) FieldDesc {
	f.Array = &ArraySpec{Mode: "prefixed", Prefix: prefix}
	return f
}

func (f FieldDesc) ArrayToEnd() FieldDesc {
	f.Array = &ArraySpec{Mode: "to_end"}
	return f
}

func (f FieldDesc) FixedString(n int) FieldDesc {
	f.String = &StringSpec{Mode: "fixed", Length: n}
	return f
}

func (f FieldDesc) RefString(field string) FieldDesc {
	f.String = &StringSpec{Mode: "ref", Ref: field}
	return f
}

func (f FieldDesc) PrefixedString(prefix string) FieldDesc {
	f.String = &StringSpec{Mode: "prefixed", Prefix: prefix}
	return f
}

func (f FieldDesc) NullTerminated() FieldDesc {
	f.String = &StringSpec{Mode: "null_terminated"}
	return f
}

// If appends a clause; repeated calls AND together.
func (f FieldDesc) If(field, op string, values ...string) FieldDesc {
	clauses := make([]ClauseDesc, len(f.When), len(f.When)+1)
	copy(clauses, f.When)
	f.When = append(clauses, ClauseDesc{Field: field, Op: op, Values: values})
	return f
}

func (f FieldDesc) AsNullable() FieldDesc {
	f.Nullable = true
	return f
}

// elementType strips one array suffix.
func elementType(typ string) (string, bool) {
	typ = strings.TrimSpace(typ)
	if strings.HasSuffix(typ, "[]") {
		return strings.TrimSpace(strings.TrimSuffix(typ, "[]")), true
	}
	return typ, false
}
