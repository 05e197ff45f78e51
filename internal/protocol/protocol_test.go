package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/schemawire/internal/testutil/testlog"
)

func TestParsePrimitive(t *testing.T) {
	testlog.Start(t)
	cases := map[string]PrimitiveType{
		"int": Int, "Int32": Int, " uint8 ": Byte, "ulong": ULong, "f64": Double, "char": Char,
	}
	for name, want := range cases {
		got, err := ParsePrimitive(name)
		if err != nil || got != want {
			t.Fatalf("ParsePrimitive(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParsePrimitive("Vec3"); !errors.Is(err, ErrUnknownPrimitive) {
		t.Fatalf("expected ErrUnknownPrimitive, got %v", err)
	}
	widths := map[PrimitiveType]int{Bool: 1, Char: 1, Short: 2, UShort: 2, Int: 4, Float: 4, Long: 8, Double: 8, Invalid: 0}
	for p, w := range widths {
		if p.Width() != w {
			t.Fatalf("%s width: got %d want %d", p, p.Width(), w)
		}
	}
}

func TestPrimitiveLittleEndian(t *testing.T) {
	testlog.Start(t)
	buf := AppendPrimitive(nil, Int, IntValue(-100))
	if !bytes.Equal(buf, []byte{0x9c, 0xff, 0xff, 0xff}) {
		t.Fatalf("int -100: % x", buf)
	}
	if got := ReadPrimitive(buf, Int); got.AsInt64() != -100 || got.Kind() != KindInt {
		t.Fatalf("read int: %v", got)
	}
	buf = AppendPrimitive(nil, Float, Float32Value(2.0))
	if !bytes.Equal(buf, []byte{0x00, 0x00, 0x00, 0x40}) {
		t.Fatalf("float 2.0: % x", buf)
	}
	buf = AppendPrimitive(nil, UShort, UintValue(0x0102))
	if !bytes.Equal(buf, []byte{0x02, 0x01}) {
		t.Fatalf("ushort: % x", buf)
	}
	if got := ReadPrimitive([]byte{0xff}, SByte); got.AsInt64() != -1 {
		t.Fatalf("sbyte: %v", got)
	}
	if got := ReadPrimitive([]byte{0x02}, Bool); !got.Bool() {
		t.Fatalf("nonzero bool byte should be true")
	}
}

func TestNormalize(t *testing.T) {
	testlog.Start(t)
	if got := Normalize(Byte, IntValue(258)); got.AsUint64() != 2 {
		t.Fatalf("byte wrap: %v", got)
	}
	if got := Normalize(Short, UintValue(0xffff)); got.AsInt64() != -1 || got.Kind() != KindInt {
		t.Fatalf("short sign: %v", got)
	}
	f := Normalize(Float, FloatValue(1.2))
	if f.AsFloat64() != float64(float32(1.2)) {
		t.Fatalf("float rounding: %v", f)
	}
	if got := Normalize(Int, StringValue("x")); got.Str() != "x" {
		t.Fatalf("strings pass through: %v", got)
	}
	if got := ZeroValue(Double); got.Kind() != KindFloat || got.AsFloat64() != 0 {
		t.Fatalf("zero double: %v", got)
	}
}

func TestValueConversions(t *testing.T) {
	testlog.Start(t)
	if IntValue(-1).AsUint64() != math.MaxUint64 {
		t.Fatalf("two's complement widening")
	}
	if FloatValue(-2.9).AsInt64() != -2 {
		t.Fatalf("float truncation toward zero")
	}
	if !Null().IsNull() || IntValue(0).IsNull() {
		t.Fatalf("null state")
	}
	if ListValue(IntValue(1), IntValue(2)).Len() != 2 || StringValue("abc").Len() != 3 {
		t.Fatalf("len")
	}
	a := ListValue(IntValue(1), StringValue("x"))
	b := a.Clone()
	b.List()[0] = IntValue(9)
	if !a.List()[0].Equal(IntValue(1)) {
		t.Fatalf("clone shares list storage")
	}
	if IntValue(1).Equal(UintValue(1)) {
		t.Fatalf("kinds must match for equality")
	}
	for f, want := range map[float64]string{math.NaN(): "NaN", math.Inf(1): "+Inf", math.Inf(-1): "-Inf"} {
		if got := FloatValue(f).Interface(); got != want {
			t.Fatalf("Interface(%v) = %#v want %q", f, got, want)
		}
	}
	if got := Float32Value(1.5).Interface(); got != 1.5 {
		t.Fatalf("finite float: %#v", got)
	}
}

func TestRecordOrderAndLookup(t *testing.T) {
	testlog.Start(t)
	item := NewRecord()
	item.Set("Kind", UintValue(2))
	r := NewRecord()
	r.Set("Count", UintValue(1))
	r.Set("Items", ListValue(RecordValue(NewRecord()), RecordValue(NewRecord()), RecordValue(item)))
	r.Set("Name", StringValue("inv"))
	r.Set("Count", UintValue(3))

	if names := r.Names(); len(names) != 3 || names[0] != "Count" || names[2] != "Name" {
		t.Fatalf("order: %v", names)
	}
	if v, ok := r.Lookup("Items[2].Kind"); !ok || v.AsUint64() != 2 {
		t.Fatalf("lookup: %v %v", v, ok)
	}
	if _, ok := r.Lookup("Items[5].Kind"); ok {
		t.Fatalf("out of range index resolved")
	}
	if _, err := ParsePath("Items[x]"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}

	c := r.Clone()
	c.Delete("Name")
	if !r.Has("Name") || c.Has("Name") || c.Len() != 2 {
		t.Fatalf("clone/delete: %v / %v", r, c)
	}
	if r.Equal(c) {
		t.Fatalf("records differ")
	}
	m := r.Map()
	if m["Count"] != uint64(3) || m["Name"] != "inv" {
		t.Fatalf("map: %#v", m)
	}
}
