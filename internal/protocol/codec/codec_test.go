package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/danmuck/schemawire/internal/testutil/testlog"
)

var testTypes = []schema.TypeDecl{
	{Name: "Vec3", Kind: schema.TypeBlock, Fields: []schema.FieldDesc{
		schema.Field("x", "float"), schema.Field("y", "float"), schema.Field("z", "float"),
	}},
	{Name: "Perms", Kind: schema.TypeEnum, Underlying: "byte", Flags: true, Members: []schema.EnumMember{
		{Name: "Flag1", Value: 1}, {Name: "Flag2", Value: 2}, {Name: "Flag3", Value: 4},
	}},
}

func build(t *testing.T, name string, fields ...schema.FieldDesc) *schema.Tree {
	t.Helper()
	tree, err := schema.NewBuilder(testTypes).Build(schema.Description{Name: name, Fields: fields})
	if err != nil {
		t.Fatalf("build %s: %v", name, err)
	}
	return tree
}

func allTypes(t *testing.T) *schema.Tree {
	return build(t, "AllTypes",
		schema.Field("Byte", "byte"),
		schema.Field("SByte", "sbyte"),
		schema.Field("Short", "short"),
		schema.Field("UShort", "ushort"),
		schema.Field("IntTest", "int"),
		schema.Field("UintTest", "uint"),
		schema.Field("Long", "long"),
		schema.Field("ULong", "ulong"),
		schema.Field("Float", "float"),
		schema.Field("Double", "double"),
	)
}

func fillAllTypes(m *Message) {
	m.Set("Byte", protocol.UintValue(1))
	m.Set("SByte", protocol.IntValue(-2))
	m.Set("Short", protocol.IntValue(-3))
	m.Set("UShort", protocol.UintValue(4))
	m.Set("IntTest", protocol.IntValue(-100))
	m.Set("UintTest", protocol.UintValue(100))
	m.Set("Long", protocol.IntValue(-5))
	m.Set("ULong", protocol.UintValue(6))
	m.Set("Float", protocol.Float32Value(1.2))
	m.Set("Double", protocol.FloatValue(2.5))
}

func TestFixedSizeRoundTrip(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := allTypes(t)
	src := engine.NewMessage(tree)
	fillAllTypes(src)

	if got := src.PackedSize(); got != 42 {
		t.Fatalf("packed size: got %d want 42", got)
	}
	buf := make([]byte, 42)
	if n := src.Pack(buf); n != 42 {
		t.Fatalf("pack: got %d want 42", n)
	}
	if !bytes.Equal(buf[6:10], []byte{0x9c, 0xff, 0xff, 0xff}) {
		t.Fatalf("IntTest bytes: % x", buf[6:10])
	}

	dst := engine.NewMessage(tree)
	if n := dst.Unpack(buf); n != 42 {
		t.Fatalf("unpack: got %d want 42", n)
	}
	if !dst.Values().Equal(src.Values()) {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", dst.Values(), src.Values())
	}
	if len(dst.Diagnostics()) != 0 {
		t.Fatalf("unexpected diagnostics: %v", dst.Diagnostics())
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := allTypes(t)
	src := engine.NewMessage(tree)
	fillAllTypes(src)
	buf := src.Marshal()

	dst := engine.NewMessage(tree)
	dst.Set("Double", protocol.FloatValue(9))
	if n := dst.Unpack(buf[:20]); n != -14 {
		t.Fatalf("unpack short: got %d want -14", n)
	}
	if got := dst.Get("UintTest"); !got.Equal(protocol.UintValue(100)) {
		t.Fatalf("field before failure not decoded: %v", got)
	}
	for _, name := range []string{"Long", "ULong", "Float"} {
		if dst.Values().Has(name) {
			t.Fatalf("%s mutated after failure point", name)
		}
	}
	if got := dst.Get("Double"); !got.Equal(protocol.FloatValue(9)) {
		t.Fatalf("Double overwritten: %v", got)
	}

	diags := dst.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("diagnostics: got %d want 1", len(diags))
	}
	d := diags[0]
	if d.Field != "Long" || d.Offset != 14 || d.Required != 8 || d.Available != 6 || d.Overflow != 2 {
		t.Fatalf("diagnostic: %+v", d)
	}
	dst.ClearDiagnostics()
	if len(dst.Diagnostics()) != 0 {
		t.Fatalf("diagnostics not cleared")
	}
}

func TestDecodeBoundsError(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	m := engine.NewMessage(allTypes(t))
	n, err := m.Decode(make([]byte, 3))
	var be *BoundsError
	if !errors.As(err, &be) {
		t.Fatalf("expected BoundsError, got %v", err)
	}
	if n != 2 || be.Field != "Short" {
		t.Fatalf("decode: n=%d field=%q", n, be.Field)
	}
}

func TestConditionalSkip(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := build(t, "Cond",
		schema.Field("IntTest", "int"),
		schema.Field("Double", "double").If("IntTest", "eq", "-100"),
		schema.Field("Tail", "byte"),
	)

	skip := []byte{0x64, 0x00, 0x00, 0x00, 0x07}
	m := engine.NewMessage(tree)
	if n := m.Unpack(skip); n != 5 {
		t.Fatalf("unpack skip: got %d want 5", n)
	}
	if m.Values().Has("Double") {
		t.Fatalf("Double decoded although predicate is false")
	}
	if got := m.Get("Tail"); got.AsUint64() != 7 {
		t.Fatalf("Tail: got %v", got)
	}

	src := engine.NewMessage(tree)
	src.Set("IntTest", protocol.IntValue(-100))
	src.Set("Double", protocol.FloatValue(2.5))
	src.Set("Tail", protocol.UintValue(7))
	if got := src.PackedSize(); got != 13 {
		t.Fatalf("packed size with predicate true: got %d want 13", got)
	}
	read := engine.NewMessage(tree)
	if n := read.Unpack(src.Marshal()); n != 13 {
		t.Fatalf("unpack read: got %d want 13", n)
	}
	if got := read.Get("Double"); !got.Equal(protocol.FloatValue(2.5)) {
		t.Fatalf("Double: got %v", got)
	}

	src.Set("IntTest", protocol.IntValue(100))
	if got := src.PackedSize(); got != 5 {
		t.Fatalf("packed size with predicate false: got %d want 5", got)
	}
}

func TestFlagPredicates(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := build(t, "Flags",
		schema.Field("Perms", "Perms"),
		schema.Field("Either", "byte").If("Perms", "has_flag", "Flag1", "Flag2"),
		schema.Field("NoFlag1", "byte").If("Perms", "lacks_flag", "Flag1"),
		schema.Field("Has3", "byte").If("Perms", "has_flag", "Flag3"),
	)
	m := engine.NewMessage(tree)
	if n := m.Unpack([]byte{0x02, 0xaa, 0xbb}); n != 3 {
		t.Fatalf("unpack: got %d want 3", n)
	}
	if m.Get("Either").AsUint64() != 0xaa || m.Get("NoFlag1").AsUint64() != 0xbb {
		t.Fatalf("values: %s", m.Values())
	}
	if m.Values().Has("Has3") {
		t.Fatalf("Has3 should be skipped")
	}

	m = engine.NewMessage(tree)
	if n := m.Unpack([]byte{0x01, 0xaa}); n != 2 {
		t.Fatalf("unpack flag1: got %d want 2", n)
	}
	if m.Values().Has("NoFlag1") {
		t.Fatalf("NoFlag1 should be skipped when Flag1 is set")
	}
}

func ints(vs ...int64) protocol.Value {
	items := make([]protocol.Value, len(vs))
	for i, v := range vs {
		items[i] = protocol.IntValue(v)
	}
	return protocol.ListValue(items...)
}

func TestArrayModes(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}

	fixed := build(t, "Fixed", schema.Field("Items", "int[]").FixedArray(4))
	if !fixed.IsFixedSize() || fixed.SizeInBytes() != 16 {
		t.Fatalf("fixed array layout: %v %d", fixed.IsFixedSize(), fixed.SizeInBytes())
	}
	m := engine.NewMessage(fixed)
	m.Set("Items", ints(1, 2, 3, 4))
	if got := m.Marshal(); !bytes.Equal(got, want) {
		t.Fatalf("fixed bytes: % x", got)
	}
	back := engine.NewMessage(fixed)
	if n := back.Unpack(want); n != 16 || !back.Get("Items").Equal(ints(1, 2, 3, 4)) {
		t.Fatalf("fixed unpack: n=%d items=%v", n, back.Get("Items"))
	}

	short := engine.NewMessage(fixed)
	short.Set("Items", ints(9))
	if got := short.Marshal(); !bytes.Equal(got, []byte{9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("fixed zero fill: % x", got)
	}

	prefixed := build(t, "Prefixed", schema.Field("Items", "int[]").PrefixedArray("int"))
	m = engine.NewMessage(prefixed)
	m.Set("Items", ints(1, 2, 3, 4))
	got := m.Marshal()
	if !bytes.Equal(got[:4], []byte{4, 0, 0, 0}) || !bytes.Equal(got[4:], want) {
		t.Fatalf("prefixed bytes: % x", got)
	}
	back = engine.NewMessage(prefixed)
	if n := back.Unpack(got); n != 20 || !back.Get("Items").Equal(ints(1, 2, 3, 4)) {
		t.Fatalf("prefixed unpack: n=%d items=%v", n, back.Get("Items"))
	}

	ref := build(t, "Ref",
		schema.Field("Count", "byte"),
		schema.Field("Items", "int[]").RefArray("Count"),
	)
	m = engine.NewMessage(ref)
	m.Set("Count", protocol.UintValue(3))
	m.Set("Items", ints(1, 2, 3))
	got = m.Marshal()
	if len(got) != 13 || got[0] != 3 {
		t.Fatalf("ref bytes: % x", got)
	}
	back = engine.NewMessage(ref)
	if n := back.Unpack(got); n != 13 || !back.Get("Items").Equal(ints(1, 2, 3)) {
		t.Fatalf("ref unpack: n=%d items=%v", n, back.Get("Items"))
	}

	toEnd := build(t, "ToEnd",
		schema.Field("Head", "byte"),
		schema.Field("Samples", "ushort[]").ArrayToEnd(),
	)
	back = engine.NewMessage(toEnd)
	if n := back.Unpack([]byte{9, 1, 0, 2, 0, 3, 0, 0xff}); n != 7 {
		t.Fatalf("to_end unpack: got %d want 7", n)
	}
	if got := back.Get("Samples").Len(); got != 3 {
		t.Fatalf("to_end count: got %d want 3", got)
	}
}

func TestArrayElementDiagnostic(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := build(t, "Fixed", schema.Field("Items", "int[]").FixedArray(3))
	m := engine.NewMessage(tree)
	buf := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	if n := m.Unpack(buf); n != -8 {
		t.Fatalf("unpack: got %d want -8", n)
	}
	if d := m.Diagnostics()[0]; d.Field != "Items[2]" || d.Required != 4 {
		t.Fatalf("diagnostic: %+v", d)
	}
	if m.Values().Has("Items") {
		t.Fatalf("partial array must not be stored")
	}
}

func TestArrayCountExceedsBuffer(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := build(t, "Prefixed", schema.Field("Items", "int[]").PrefixedArray("int"))
	m := engine.NewMessage(tree)
	buf := []byte{3, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}
	if n := m.Unpack(buf); n != -4 {
		t.Fatalf("unpack: got %d want -4", n)
	}
	d := m.Diagnostics()[0]
	if d.Field != "Items" || d.Offset != 4 || d.Required != 12 || d.Available != 8 {
		t.Fatalf("diagnostic: %+v", d)
	}

	ref := build(t, "Ref",
		schema.Field("Count", "uint"),
		schema.Field("Spots", "Vec3[]").RefArray("Count"),
	)
	m = engine.NewMessage(ref)
	if n := m.Unpack([]byte{0xff, 0xff, 0xff, 0x7f}); n != -4 {
		t.Fatalf("ref count: got %d want -4", n)
	}
	if d := m.Diagnostics()[0]; d.Field != "Spots" || d.Available != 0 {
		t.Fatalf("ref diagnostic: %+v", d)
	}
}

func TestZeroWidthElementCount(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := build(t, "Names", schema.Field("Names", "string[]").PrefixedArray("int").NullTerminated())

	// 50,000,000 elements announced with nothing behind the prefix
	m := engine.NewMessage(tree)
	n, err := m.Decode([]byte{0x80, 0xf0, 0xfa, 0x02})
	var bounds *BoundsError
	if !errors.As(err, &bounds) || n != 4 || bounds.Field != "Names" {
		t.Fatalf("huge count: n=%d err=%v", n, err)
	}
	if m.Values().Has("Names") {
		t.Fatalf("rejected array must not be stored")
	}

	// one element per remaining byte, plus one empty tail, still decodes
	m = engine.NewMessage(tree)
	buf := []byte{3, 0, 0, 0, 'a', 0, 0}
	if n := m.Unpack(buf); n != len(buf) {
		t.Fatalf("tight count: got %d want %d", n, len(buf))
	}
	names := m.Get("Names").List()
	if len(names) != 3 || names[0].Str() != "a" || names[1].Str() != "" || names[2].Str() != "" {
		t.Fatalf("names: %v", m.Get("Names"))
	}
	m = engine.NewMessage(tree)
	if n := m.Unpack([]byte{5, 0, 0, 0, 'a', 0, 0}); n != -4 {
		t.Fatalf("one over the cap: got %d want -4", n)
	}
}

func TestStringModes(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	const text = "testyay:>"
	cases := []struct {
		name   string
		fields []schema.FieldDesc
		size   int
		tail   []byte
	}{
		{"Fixed", []schema.FieldDesc{schema.Field("Text", "string").FixedString(9)}, 9, nil},
		{"Ref", []schema.FieldDesc{
			schema.Field("Len", "byte"),
			schema.Field("Text", "string").RefString("Len"),
		}, 10, nil},
		{"Prefixed", []schema.FieldDesc{schema.Field("Text", "string").PrefixedString("int")}, 13, nil},
		{"NullTerminated", []schema.FieldDesc{schema.Field("Text", "string").NullTerminated()}, 10, []byte{0}},
	}
	for _, tc := range cases {
		tree := build(t, tc.name, tc.fields...)
		m := engine.NewMessage(tree)
		m.Set("Text", protocol.StringValue(text))
		m.Set("Len", protocol.UintValue(9))
		buf := m.Marshal()
		if len(buf) != tc.size {
			t.Fatalf("%s: packed %d bytes want %d", tc.name, len(buf), tc.size)
		}
		if tc.tail != nil && !bytes.HasSuffix(buf, tc.tail) {
			t.Fatalf("%s: missing terminator: % x", tc.name, buf)
		}
		back := engine.NewMessage(tree)
		if n := back.Unpack(buf); n != tc.size {
			t.Fatalf("%s: unpack got %d want %d", tc.name, n, tc.size)
		}
		if got := back.Get("Text").Str(); got != text {
			t.Fatalf("%s: got %q", tc.name, got)
		}
	}
}

func TestNullTerminatedEdges(t *testing.T) {
	testlog.Start(t)
	tree := build(t, "Note",
		schema.Field("Text", "string").NullTerminated(),
	)
	engine := New(DefaultConfig())
	m := engine.NewMessage(tree)
	if n := m.Unpack([]byte("abc")); n != 3 {
		t.Fatalf("unterminated: got %d want 3", n)
	}
	if m.Get("Text").Str() != "abc" {
		t.Fatalf("unterminated text: %q", m.Get("Text").Str())
	}

	cfg := DefaultConfig()
	cfg.OmitNullTerminator = true
	omit := New(cfg).NewMessage(tree)
	omit.Set("Text", protocol.StringValue("abc"))
	if got := omit.Marshal(); !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("omit terminator: % x", got)
	}
}

func TestFixedStringPadding(t *testing.T) {
	testlog.Start(t)
	tree := build(t, "Pad", schema.Field("Tag", "string").FixedString(6))
	engine := New(DefaultConfig())
	m := engine.NewMessage(tree)
	m.Set("Tag", protocol.StringValue("ab"))
	buf := m.Marshal()
	if !bytes.Equal(buf, []byte{'a', 'b', 0, 0, 0, 0}) {
		t.Fatalf("padding: % x", buf)
	}
	back := engine.NewMessage(tree)
	back.Unpack(buf)
	if back.Get("Tag").Str() != "ab" {
		t.Fatalf("trimmed: %q", back.Get("Tag").Str())
	}

	m.Set("Tag", protocol.StringValue("abcdefgh"))
	if got := m.Marshal(); string(got) != "abcdef" {
		t.Fatalf("truncate: %q", got)
	}
}

func TestBlocksRoundTrip(t *testing.T) {
	testlog.Start(t)
	engine := New(DefaultConfig())
	tree := build(t, "Path",
		schema.Field("Origin", "Vec3"),
		schema.Field("Points", "Vec3[]").PrefixedArray("ushort"),
	)
	vec := func(x, y, z float32) protocol.Value {
		r := protocol.NewRecord()
		r.Set("x", protocol.Float32Value(x))
		r.Set("y", protocol.Float32Value(y))
		r.Set("z", protocol.Float32Value(z))
		return protocol.RecordValue(r)
	}
	m := engine.NewMessage(tree)
	m.Set("Origin", vec(1, 2, 3))
	m.Set("Points", protocol.ListValue(vec(4, 5, 6), vec(7, 8, 9)))
	buf := m.Marshal()
	if len(buf) != 12+2+24 {
		t.Fatalf("packed %d bytes", len(buf))
	}
	back := engine.NewMessage(tree)
	if n := back.Unpack(buf); n != len(buf) {
		t.Fatalf("unpack: got %d", n)
	}
	if !back.Values().Equal(m.Values()) {
		t.Fatalf("blocks mismatch:\n got %s\nwant %s", back.Values(), m.Values())
	}
	if v, ok := back.Values().Lookup("Points[1].y"); !ok || v.AsFloat64() != 8 {
		t.Fatalf("lookup Points[1].y: %v %v", v, ok)
	}

	if n := back.Unpack(buf[:20]); n >= 0 {
		t.Fatalf("expected failure, got %d", n)
	}
	if d := back.Diagnostics()[0]; d.Field != "Points[0].y" {
		t.Fatalf("nested diagnostic field: %q", d.Field)
	}
}

type recorded struct {
	op    string
	bytes int
	ok    bool
}

type fakeRecorder struct{ calls []recorded }

func (f *fakeRecorder) ObserveCodec(_ string, op string, n int, ok bool) {
	f.calls = append(f.calls, recorded{op, n, ok})
}

func TestEngineMetricsAndDiagnosticCap(t *testing.T) {
	testlog.Start(t)
	rec := &fakeRecorder{}
	cfg := DefaultConfig()
	cfg.MaxDiagnostics = 2
	cfg.LogBoundsFailures = true
	engine := New(cfg, WithMetrics(rec))
	m := engine.NewMessage(allTypes(t))
	for i := 0; i < 3; i++ {
		m.Unpack(make([]byte, i))
	}
	if got := len(m.Diagnostics()); got != 2 {
		t.Fatalf("diagnostic cap: got %d want 2", got)
	}
	if m.Diagnostics()[1].Offset != 2 {
		t.Fatalf("oldest diagnostic should be dropped: %+v", m.Diagnostics())
	}
	if len(rec.calls) != 3 || rec.calls[0].ok || rec.calls[0].op != "unpack" {
		t.Fatalf("recorder calls: %+v", rec.calls)
	}

	cfg.Diagnostics = false
	quiet := New(cfg).NewMessage(allTypes(t))
	quiet.Unpack(nil)
	if len(quiet.Diagnostics()) != 0 {
		t.Fatalf("diagnostics disabled but retained")
	}
}
