package codec

import (
	"math"

	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/danmuck/schemawire/internal/protocol/schema"
)

// encoder walks a tree against live values. With sizeOnly set it only
// advances the offset, so Pack and PackedSize can never disagree.
type encoder struct {
	t        *schema.Tree
	buf      []byte
	off      int
	root     *protocol.Record
	sizeOnly bool
	omitNull bool
}

// Pack writes rec into buf and returns the bytes written. buf must hold
// PackedSize bytes; writes are not bounds checked.
func (e *Engine) Pack(t *schema.Tree, rec *protocol.Record, buf []byte) int {
	w := e.encoder(t, rec, buf)
	w.fields(t.Root(), rec)
	e.observe(t.Name(), "pack", w.off, true)
	return w.off
}

// PackedSize is the byte count Pack would write for rec.
func (e *Engine) PackedSize(t *schema.Tree, rec *protocol.Record) int {
	w := e.encoder(t, rec, nil)
	w.sizeOnly = true
	w.fields(t.Root(), rec)
	return w.off
}

// Marshal allocates exactly PackedSize bytes and packs rec into them.
func (e *Engine) Marshal(t *schema.Tree, rec *protocol.Record) []byte {
	buf := make([]byte, e.PackedSize(t, rec))
	e.Pack(t, rec, buf)
	return buf
}

// PackField writes the payload of one top-level slot. A conditional slot
// is written without evaluating its predicate.
func (e *Engine) PackField(t *schema.Tree, id schema.NodeID, rec *protocol.Record, buf []byte) int {
	w := e.encoder(t, rec, buf)
	w.field(t.Unwrap(id), rec)
	return w.off
}

// FieldSize is the payload size PackField would write.
func (e *Engine) FieldSize(t *schema.Tree, id schema.NodeID, rec *protocol.Record) int {
	w := e.encoder(t, rec, nil)
	w.sizeOnly = true
	w.field(t.Unwrap(id), rec)
	return w.off
}

func (e *Engine) encoder(t *schema.Tree, rec *protocol.Record, buf []byte) *encoder {
	if rec == nil {
		rec = protocol.NewRecord()
	}
	return &encoder{t: t, buf: buf, root: rec, omitNull: e.cfg.OmitNullTerminator}
}

func (w *encoder) fields(parent schema.NodeID, rec *protocol.Record) {
	for _, id := range w.t.Children(parent) {
		if cond, ok := w.t.Node(id).(*schema.ConditionalNode); ok {
			if !cond.Holds(rec, w.root) {
				continue
			}
			id = w.t.Unwrap(id)
		}
		w.field(id, rec)
	}
}

func (w *encoder) field(id schema.NodeID, rec *protocol.Record) {
	w.value(id, rec.Value(w.t.Node(id).Name()), rec)
}

func (w *encoder) value(id schema.NodeID, v protocol.Value, scope *protocol.Record) {
	switch n := w.t.Node(id).(type) {
	case *schema.FieldNode:
		p := n.Primitive()
		if v.IsNull() {
			v = protocol.ZeroValue(p)
		}
		if !w.sizeOnly {
			protocol.PutPrimitive(w.buf[w.off:], p, v)
		}
		w.off += p.Width()
	case *schema.StringNode:
		w.str(n, v.Str(), scope)
	case *schema.ArrayNode:
		w.array(n, v.List(), scope)
	case *schema.BlockNode:
		rec := v.Record()
		if rec == nil {
			rec = protocol.NewRecord()
		}
		w.fields(id, rec)
	case *schema.ConditionalNode:
		if n.Holds(scope, w.root) {
			w.value(n.Child(), v, scope)
		}
	}
}

func (w *encoder) prefix(p protocol.PrimitiveType, n int) {
	if !w.sizeOnly {
		protocol.PutPrimitive(w.buf[w.off:], p, protocol.UintValue(uint64(n)))
	}
	w.off += p.Width()
}

// bytes writes exactly n bytes of s, truncating or zero padding.
func (w *encoder) bytes(s string, n int) {
	if !w.sizeOnly {
		dst := w.buf[w.off : w.off+n]
		c := copy(dst, s)
		clear(dst[c:])
	}
	w.off += n
}

func (w *encoder) str(n *schema.StringNode, s string, scope *protocol.Record) {
	switch n.Mode() {
	case schema.StringFixed:
		w.bytes(s, n.Length())
	case schema.StringRefField:
		w.bytes(s, refCount(scope, n.Ref()))
	case schema.StringLengthPrefixed:
		size := min(len(s), maxCount(n.Prefix()))
		w.prefix(n.Prefix(), size)
		w.bytes(s, size)
	case schema.StringNullTerminated:
		w.bytes(s, len(s))
		if !w.omitNull {
			w.bytes("", 1)
		}
	}
}

func (w *encoder) array(n *schema.ArrayNode, items []protocol.Value, scope *protocol.Record) {
	var count int
	switch n.Mode() {
	case schema.ArrayFixed:
		count = n.Count()
	case schema.ArrayRefField:
		count = refCount(scope, n.Ref())
	case schema.ArrayLengthPrefixed:
		count = min(len(items), maxCount(n.Prefix()))
		w.prefix(n.Prefix(), count)
	case schema.ArrayReadToEnd:
		count = len(items)
	}
	elem := n.Element()
	for i := 0; i < count; i++ {
		var item protocol.Value
		if i < len(items) {
			item = items[i]
		}
		w.value(elem, item, scope)
	}
}

// refCount reads a RefField length from the sibling named ref.
func refCount(scope *protocol.Record, ref string) int {
	return clampCount(scope.Value(ref))
}

// clampCount converts a decoded count into a usable int. Negative counts
// become zero.
func clampCount(v protocol.Value) int {
	if v.Kind() == protocol.KindUint {
		if u := v.AsUint64(); u > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(v.AsUint64())
	}
	i := v.AsInt64()
	switch {
	case i < 0:
		return 0
	case i > math.MaxInt32:
		return math.MaxInt32
	}
	return int(i)
}

// maxCount is the largest count a prefix of type p can carry.
func maxCount(p protocol.PrimitiveType) int {
	bits := uint(p.Width() * 8)
	if p.IsSigned() {
		bits--
	}
	if bits >= 31 {
		return math.MaxInt32
	}
	return 1<<bits - 1
}
