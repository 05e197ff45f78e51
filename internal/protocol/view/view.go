package view

import (
	"fmt"

	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/danmuck/schemawire/internal/protocol/codec"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// nullID is added to a slot index to mark a null-clear record.
const nullID = 128

// Slot is one top-level field of a view.
type Slot struct {
	Index    int
	Name     string
	Node     schema.NodeID
	Nullable bool
}

// Recorder counts change stream records by kind ("value" or "null").
type Recorder interface {
	ObserveChanges(schema, kind string, n int)
}

type Option func(*View)

func WithMetrics(r Recorder) Option {
	return func(v *View) { v.metrics = r }
}

// View is one instance of a view schema. It is not safe for concurrent
// use.
type View struct {
	msg      *codec.Message
	slots    []Slot
	byName   map[string]int
	dirty    []byte
	nullable []byte
	metrics  Recorder
}

func New(engine *codec.Engine, t *schema.Tree, opts ...Option) (*View, error) {
	if !t.IsView() {
		return nil, fmt.Errorf("%w: %s", ErrNotView, t.Name())
	}
	top := t.TopLevel()
	if len(top) > schema.MaxViewFields {
		return nil, fmt.Errorf("%w: %s has %d", ErrTooManySlots, t.Name(), len(top))
	}
	v := &View{
		msg:      engine.NewMessage(t),
		slots:    make([]Slot, len(top)),
		byName:   make(map[string]int, len(top)),
		dirty:    make([]byte, bitmapLen(len(top))),
		nullable: make([]byte, bitmapLen(len(top))),
	}
	for i, id := range top {
		name := t.FieldName(id)
		v.slots[i] = Slot{Index: i, Name: name, Node: id, Nullable: t.Node(id).IsNullable()}
		v.byName[name] = i
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func bitmapLen(n int) int { return (n + 7) / 8 }

func setBit(bm []byte, i int, on bool) {
	if on {
		bm[i/8] |= 1 << (i % 8)
	} else {
		bm[i/8] &^= 1 << (i % 8)
	}
}

func bit(bm []byte, i int) bool { return bm[i/8]&(1<<(i%8)) != 0 }

func (v *View) Tree() *schema.Tree { return v.msg.Tree() }

func (v *View) Slots() []Slot {
	out := make([]Slot, len(v.slots))
	copy(out, v.slots)
	return out
}

// Values exposes the live record. Writes through it bypass dirty tracking.
func (v *View) Values() *protocol.Record { return v.msg.Values() }

func (v *View) index(name string) (int, error) {
	i, ok := v.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return i, nil
}

// Set assigns a top-level field and marks it dirty. A null value is only
// accepted for nullable fields.
func (v *View) Set(name string, val protocol.Value) error {
	i, err := v.index(name)
	if err != nil {
		return err
	}
	return v.SetIndex(i, val)
}

func (v *View) SetIndex(i int, val protocol.Value) error {
	if i < 0 || i >= len(v.slots) {
		return fmt.Errorf("%w: index %d", ErrUnknownField, i)
	}
	s := v.slots[i]
	if val.IsNull() && !s.Nullable {
		return fmt.Errorf("%w: %q", ErrNotNullable, s.Name)
	}
	v.msg.Set(s.Name, val)
	setBit(v.dirty, i, true)
	return nil
}

func (v *View) SetNull(name string) error {
	return v.Set(name, protocol.Null())
}

// Get reads a field; it never touches the dirty bitmap.
func (v *View) Get(name string) protocol.Value { return v.msg.Get(name) }

func (v *View) IsDirty(i int) bool { return bit(v.dirty, i) }

// IsNull reports whether slot i currently holds no value.
func (v *View) IsNull(i int) bool { return v.msg.Get(v.slots[i].Name).IsNull() }

func (v *View) DirtyBitmap() []byte { return append([]byte(nil), v.dirty...) }

// NullableBitmap has a bit set for every nullable field that is null as
// of the last pack.
func (v *View) NullableBitmap() []byte { return append([]byte(nil), v.nullable...) }

func (v *View) MarkAllDirty() {
	for i := range v.slots {
		setBit(v.dirty, i, true)
	}
}

// ClearViewChanges zeroes the dirty bitmap. The nullable bitmap is left
// alone; it is recomputed before every pack.
func (v *View) ClearViewChanges() {
	clear(v.dirty)
}

// FullName is the canonical path of slot i.
func (v *View) FullName(i int) string {
	return v.Tree().FullName(v.Tree().Unwrap(v.slots[i].Node))
}

func (v *View) refreshNullable() {
	for i, s := range v.slots {
		if s.Nullable {
			setBit(v.nullable, i, v.IsNull(i))
		}
	}
}

// sendsNull reports whether a dirty slot is written as a null-clear.
func (v *View) sendsNull(i int) bool {
	return v.slots[i].Nullable && bit(v.nullable, i)
}

// PackChanges writes every dirty field in declaration order and returns
// the bytes written. buf must hold PackedChangesSize bytes.
func (v *View) PackChanges(buf []byte) int {
	v.refreshNullable()
	off, values, nulls := 0, 0, 0
	for i, s := range v.slots {
		if !bit(v.dirty, i) {
			continue
		}
		if v.sendsNull(i) {
			buf[off] = byte(i + nullID)
			off++
			nulls++
			continue
		}
		buf[off] = byte(i)
		off++
		off += v.msg.PackField(s.Node, buf[off:])
		values++
	}
	v.observe(values, nulls)
	return off
}

// PackedChangesSize is the byte count PackChanges would write.
func (v *View) PackedChangesSize() int {
	v.refreshNullable()
	n := 0
	for i, s := range v.slots {
		if !bit(v.dirty, i) {
			continue
		}
		n++
		if !v.sendsNull(i) {
			n += v.msg.FieldSize(s.Node)
		}
	}
	return n
}

// AppendChanges appends the change stream to dst.
func (v *View) AppendChanges(dst []byte) []byte {
	size := v.PackedChangesSize()
	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	v.PackChanges(dst[start:])
	return dst
}

// UnpackChanges applies a change stream and returns the bytes consumed.
// Decoding stops at the first payload bounds failure or unknown id and
// returns the negated offset reached.
func (v *View) UnpackChanges(buf []byte) int {
	n, err := v.apply(buf)
	if err != nil {
		return -n
	}
	return n
}

// DecodeChanges is UnpackChanges with an error in place of the negative
// offset, so a failure at offset 0 is still visible. The error is a
// *codec.BoundsError or wraps ErrUnknownChangeID.
func (v *View) DecodeChanges(buf []byte) (int, error) {
	return v.apply(buf)
}

func (v *View) apply(buf []byte) (int, error) {
	off, values, nulls := 0, 0, 0
	defer func() { v.observe(values, nulls) }()
	for off < len(buf) {
		id := int(buf[off])
		if id >= nullID {
			i := id - nullID
			if i >= len(v.slots) {
				return off, v.badID(id, off)
			}
			v.msg.Set(v.slots[i].Name, protocol.Null())
			if v.slots[i].Nullable {
				setBit(v.nullable, i, true)
			}
			off++
			nulls++
			continue
		}
		if id >= len(v.slots) {
			return off, v.badID(id, off)
		}
		n, err := v.msg.DecodeField(v.slots[id].Node, buf, off+1)
		if err != nil {
			return n, err
		}
		if v.slots[id].Nullable {
			setBit(v.nullable, id, false)
		}
		off = n
		values++
	}
	return off, nil
}

func (v *View) badID(id, off int) error {
	log.Warn().
		Str("schema", v.Tree().Name()).
		Int("id", id).
		Int("offset", off).
		Int("slots", len(v.slots)).
		Msg("view.UnpackChanges unknown field id")
	return fmt.Errorf("%w: id %d at offset %d", ErrUnknownChangeID, id, off)
}

func (v *View) observe(values, nulls int) {
	if v.metrics == nil {
		return
	}
	if values > 0 {
		v.metrics.ObserveChanges(v.Tree().Name(), "value", values)
	}
	if nulls > 0 {
		v.metrics.ObserveChanges(v.Tree().Name(), "null", nulls)
	}
}

// Pack writes every field, as codec.Message.Pack does. Null fields pack
// as zero.
func (v *View) Pack(buf []byte) int { return v.msg.Pack(buf) }

func (v *View) Unpack(buf []byte) int { return v.msg.Unpack(buf) }

func (v *View) PackedSize() int { return v.msg.PackedSize() }

func (v *View) Marshal() []byte { return v.msg.Marshal() }

func (v *View) Diagnostics() []codec.Diagnostic { return v.msg.Diagnostics() }

func (v *View) ClearDiagnostics() { v.msg.ClearDiagnostics() }
