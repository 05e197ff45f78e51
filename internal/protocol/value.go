package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the payload held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindList
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Value is one live field value. The zero Value is null.
type Value struct {
	kind Kind
	bits uint64
	str  string
	list []Value
	rec  *Record
}

func Null() Value { return Value{} }

func BoolValue(v bool) Value {
	if v {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

func IntValue(v int64) Value { return Value{kind: KindInt, bits: uint64(v)} }

func UintValue(v uint64) Value { return Value{kind: KindUint, bits: v} }

func FloatValue(v float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(v)} }

// Float32Value stores v widened to float64 so a float field round-trips
// without precision drift.
func Float32Value(v float32) Value { return FloatValue(float64(v)) }

func StringValue(v string) Value { return Value{kind: KindString, str: v} }

func ListValue(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

func RecordValue(r *Record) Value {
	if r == nil {
		r = NewRecord()
	}
	return Value{kind: KindRecord, rec: r}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() bool {
	switch v.kind {
	case KindFloat:
		return v.Float() != 0
	default:
		return v.bits != 0
	}
}

func (v Value) Float() float64 {
	if v.kind == KindFloat {
		return math.Float64frombits(v.bits)
	}
	return float64(v.AsInt64())
}

func (v Value) Str() string { return v.str }

// List returns the elements of a list value. The slice is shared.
func (v Value) List() []Value { return v.list }

// Record returns the nested record of a record value, or nil.
func (v Value) Record() *Record { return v.rec }

// Len is the element count of a list or the byte length of a string.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindString:
		return len(v.str)
	}
	return 0
}

// AsInt64 widens any numeric kind to int64. Floats truncate toward zero.
func (v Value) AsInt64() int64 {
	switch v.kind {
	case KindFloat:
		return int64(math.Float64frombits(v.bits))
	case KindBool, KindInt, KindUint:
		return int64(v.bits)
	}
	return 0
}

// AsUint64 returns the two's complement bit pattern of any numeric kind.
func (v Value) AsUint64() uint64 {
	if v.kind == KindFloat {
		return uint64(int64(math.Float64frombits(v.bits)))
	}
	if v.kind == KindBool || v.kind == KindInt || v.kind == KindUint {
		return v.bits
	}
	return 0
}

func (v Value) AsFloat64() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits)
	case KindUint:
		return float64(v.bits)
	}
	return float64(v.AsInt64())
}

// Equal compares kind and payload recursively.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		return v.rec.Equal(o.rec)
	default:
		return v.bits == o.bits
	}
}

// Clone deep-copies lists and nested records.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = item.Clone()
		}
		return Value{kind: KindList, list: out}
	case KindRecord:
		return Value{kind: KindRecord, rec: v.rec.Clone()}
	}
	return v
}

// Interface converts v into plain Go values suitable for JSON encoding.
// NaN and the infinities become the strings "NaN", "+Inf" and "-Inf".
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.AsInt64()
	case KindUint:
		return v.bits
	case KindFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	case KindString:
		return v.str
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindRecord:
		return v.rec.Map()
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.AsInt64(), 10)
	case KindUint:
		return strconv.FormatUint(v.bits, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindRecord:
		return v.rec.String()
	}
	return "?"
}
