package protocol

import (
	"fmt"
	"strings"
)

// PrimitiveType is the fixed-width scalar tag carried by every leaf field.
type PrimitiveType uint8

const (
	Invalid PrimitiveType = iota
	Bool
	Byte
	SByte
	Char
	Short
	UShort
	Int
	UInt
	Long
	ULong
	Float
	Double
)

var primitiveNames = [...]string{
	Invalid: "invalid",
	Bool:    "bool",
	Byte:    "byte",
	SByte:   "sbyte",
	Char:    "char",
	Short:   "short",
	UShort:  "ushort",
	Int:     "int",
	UInt:    "uint",
	Long:    "long",
	ULong:   "ulong",
	Float:   "float",
	Double:  "double",
}

var primitiveWidths = [...]int{
	Bool:   1,
	Byte:   1,
	SByte:  1,
	Char:   1,
	Short:  2,
	UShort: 2,
	Int:    4,
	UInt:   4,
	Long:   8,
	ULong:  8,
	Float:  4,
	Double: 8,
}

var primitiveAliases = map[string]PrimitiveType{
	"bool":    Bool,
	"boolean": Bool,
	"byte":    Byte,
	"uint8":   Byte,
	"u8":      Byte,
	"sbyte":   SByte,
	"int8":    SByte,
	"i8":      SByte,
	"char":    Char,
	"short":   Short,
	"int16":   Short,
	"i16":     Short,
	"ushort":  UShort,
	"uint16":  UShort,
	"u16":     UShort,
	"int":     Int,
	"int32":   Int,
	"i32":     Int,
	"uint":    UInt,
	"uint32":  UInt,
	"u32":     UInt,
	"long":    Long,
	"int64":   Long,
	"i64":     Long,
	"ulong":   ULong,
	"uint64":  ULong,
	"u64":     ULong,
	"float":   Float,
	"float32": Float,
	"f32":     Float,
	"double":  Double,
	"float64": Double,
	"f64":     Double,
}

// ParsePrimitive resolves a declared type name to its primitive tag.
func ParsePrimitive(name string) (PrimitiveType, error) {
	if t, ok := primitiveAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return Invalid, fmt.Errorf("%w: %q", ErrUnknownPrimitive, name)
}

// IsPrimitiveName reports whether name is a primitive type name or alias.
func IsPrimitiveName(name string) bool {
	_, ok := primitiveAliases[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (t PrimitiveType) String() string {
	if int(t) < len(primitiveNames) {
		return primitiveNames[t]
	}
	return fmt.Sprintf("primitive(%d)", t)
}

// Width returns the encoded size in bytes, or 0 for Invalid.
func (t PrimitiveType) Width() int {
	if t == Invalid || int(t) >= len(primitiveWidths) {
		return 0
	}
	return primitiveWidths[t]
}

// IsInteger reports whether t can carry a count, length or flag set.
func (t PrimitiveType) IsInteger() bool {
	switch t {
	case Byte, SByte, Char, Short, UShort, Int, UInt, Long, ULong:
		return true
	}
	return false
}

// IsSigned reports whether t decodes into a signed Value.
func (t PrimitiveType) IsSigned() bool {
	switch t {
	case SByte, Short, Int, Long:
		return true
	}
	return false
}

func (t PrimitiveType) IsFloat() bool {
	return t == Float || t == Double
}
