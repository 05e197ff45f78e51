package protocol

import (
	"encoding/binary"
	"math"
)

// PutPrimitive writes v as a little-endian t at the start of buf and
// returns the width written. buf must hold t.Width() bytes.
func PutPrimitive(buf []byte, t PrimitiveType, v Value) int {
	switch t {
	case Bool:
		b := byte(0)
		if v.Bool() {
			b = 1
		}
		buf[0] = b
	case Byte, SByte, Char:
		buf[0] = byte(v.AsUint64())
	case Short, UShort:
		binary.LittleEndian.PutUint16(buf, uint16(v.AsUint64()))
	case Int, UInt:
		binary.LittleEndian.PutUint32(buf, uint32(v.AsUint64()))
	case Long, ULong:
		binary.LittleEndian.PutUint64(buf, v.AsUint64())
	case Float:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.AsFloat64())))
	case Double:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.AsFloat64()))
	default:
		return 0
	}
	return t.Width()
}

// AppendPrimitive appends v encoded as t to dst.
func AppendPrimitive(dst []byte, t PrimitiveType, v Value) []byte {
	var scratch [8]byte
	n := PutPrimitive(scratch[:], t, v)
	return append(dst, scratch[:n]...)
}

// ReadPrimitive decodes a little-endian t from the start of buf. buf must
// hold t.Width() bytes.
func ReadPrimitive(buf []byte, t PrimitiveType) Value {
	switch t {
	case Bool:
		return BoolValue(buf[0] != 0)
	case Byte, Char:
		return UintValue(uint64(buf[0]))
	case SByte:
		return IntValue(int64(int8(buf[0])))
	case Short:
		return IntValue(int64(int16(binary.LittleEndian.Uint16(buf))))
	case UShort:
		return UintValue(uint64(binary.LittleEndian.Uint16(buf)))
	case Int:
		return IntValue(int64(int32(binary.LittleEndian.Uint32(buf))))
	case UInt:
		return UintValue(uint64(binary.LittleEndian.Uint32(buf)))
	case Long:
		return IntValue(int64(binary.LittleEndian.Uint64(buf)))
	case ULong:
		return UintValue(binary.LittleEndian.Uint64(buf))
	case Float:
		return Float32Value(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case Double:
		return FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	}
	return Value{}
}

// ZeroValue is the value a null or absent field packs as.
func ZeroValue(t PrimitiveType) Value {
	switch {
	case t == Bool:
		return BoolValue(false)
	case t.IsFloat():
		return FloatValue(0)
	case t.IsSigned():
		return IntValue(0)
	default:
		return UintValue(0)
	}
}

// Normalize truncates v to the width and signedness of t, matching what a
// pack followed by an unpack would produce.
func Normalize(t PrimitiveType, v Value) Value {
	if t.Width() == 0 || v.Kind() == KindString || v.Kind() == KindList || v.Kind() == KindRecord {
		return v
	}
	var scratch [8]byte
	PutPrimitive(scratch[:], t, v)
	return ReadPrimitive(scratch[:], t)
}
