package codec

import (
	"bytes"
	"math"
	"strings"

	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/danmuck/schemawire/internal/protocol/schema"
)

type decoder struct {
	t       *schema.Tree
	buf     []byte
	off     int
	root    *protocol.Record
	indices []int
	diag    *Diagnostic
}

// Unpack decodes buf into rec and returns the bytes consumed. On a bounds
// failure it returns the negated offset reached together with the
// Diagnostic; fields after the failure point are left untouched.
func (e *Engine) Unpack(t *schema.Tree, buf []byte, rec *protocol.Record) (int, *Diagnostic) {
	d := &decoder{t: t, buf: buf, root: rec}
	ok := d.fields(t.Root(), rec)
	return e.finishUnpack(d, "unpack", 0, ok)
}

// UnpackField decodes one top-level slot into rec starting at buf[off]
// and returns the end offset, or the negated failure offset. A conditional
// slot is decoded without evaluating its predicate.
func (e *Engine) UnpackField(t *schema.Tree, id schema.NodeID, buf []byte, off int, rec *protocol.Record) (int, *Diagnostic) {
	d := &decoder{t: t, buf: buf, off: off, root: rec}
	ok := d.field(t.Unwrap(id), rec)
	return e.finishUnpack(d, "unpack_field", off, ok)
}

func (e *Engine) finishUnpack(d *decoder, op string, start int, ok bool) (int, *Diagnostic) {
	if ok {
		e.observe(d.t.Name(), op, d.off-start, true)
		return d.off, nil
	}
	if e.cfg.LogBoundsFailures {
		e.log().Warn().
			Str("schema", d.diag.Schema).
			Str("field", d.diag.Field).
			Int("offset", d.diag.Offset).
			Int("required", d.diag.Required).
			Int("overflow", d.diag.Overflow).
			Msg("codec.Unpack bounds failure")
	}
	e.observe(d.t.Name(), op, d.off-start, false)
	return -d.off, d.diag
}

func (d *decoder) need(id schema.NodeID, n int) bool {
	if d.off+n <= len(d.buf) {
		return true
	}
	d.diag = &Diagnostic{
		Schema:    d.t.Name(),
		Field:     d.t.FullName(id, d.indices...),
		Offset:    d.off,
		Required:  n,
		Available: len(d.buf) - d.off,
		Overflow:  d.off + n - len(d.buf),
	}
	return false
}

// fields decodes the children of a root or block node into rec.
func (d *decoder) fields(parent schema.NodeID, rec *protocol.Record) bool {
	for _, id := range d.t.Children(parent) {
		if cond, ok := d.t.Node(id).(*schema.ConditionalNode); ok {
			if !cond.Holds(rec, d.root) {
				continue
			}
			id = d.t.Unwrap(id)
		}
		if !d.field(id, rec) {
			return false
		}
	}
	return true
}

// field decodes a named node and stores it in rec. Blocks decode in place
// into any record already held under the name.
func (d *decoder) field(id schema.NodeID, rec *protocol.Record) bool {
	n := d.t.Node(id)
	if _, ok := n.(*schema.BlockNode); ok {
		nested := rec.Value(n.Name()).Record()
		if nested == nil {
			nested = protocol.NewRecord()
			rec.Set(n.Name(), protocol.RecordValue(nested))
		}
		return d.fields(id, nested)
	}
	v, ok := d.value(id, rec)
	if !ok {
		return false
	}
	rec.Set(n.Name(), v)
	return true
}

// value decodes one node. scope is the record the node's siblings live in.
func (d *decoder) value(id schema.NodeID, scope *protocol.Record) (protocol.Value, bool) {
	switch n := d.t.Node(id).(type) {
	case *schema.FieldNode:
		w := n.Primitive().Width()
		if !d.need(id, w) {
			return protocol.Value{}, false
		}
		v := protocol.ReadPrimitive(d.buf[d.off:], n.Primitive())
		d.off += w
		return v, true
	case *schema.StringNode:
		return d.str(n, scope)
	case *schema.ArrayNode:
		return d.array(n, scope)
	case *schema.BlockNode:
		rec := protocol.NewRecord()
		if !d.fields(id, rec) {
			return protocol.Value{}, false
		}
		return protocol.RecordValue(rec), true
	case *schema.ConditionalNode:
		if !n.Holds(scope, d.root) {
			return protocol.Null(), true
		}
		return d.value(n.Child(), scope)
	}
	return protocol.Value{}, true
}

// prefix reads a length prefix of type p.
func (d *decoder) prefix(id schema.NodeID, p protocol.PrimitiveType) (int, bool) {
	if !d.need(id, p.Width()) {
		return 0, false
	}
	v := protocol.ReadPrimitive(d.buf[d.off:], p)
	d.off += p.Width()
	return clampCount(v), true
}

func (d *decoder) str(n *schema.StringNode, scope *protocol.Record) (protocol.Value, bool) {
	id := n.ID()
	var size int
	switch n.Mode() {
	case schema.StringFixed:
		size = n.Length()
	case schema.StringRefField:
		size = refCount(scope, n.Ref())
	case schema.StringLengthPrefixed:
		var ok bool
		if size, ok = d.prefix(id, n.Prefix()); !ok {
			return protocol.Value{}, false
		}
	case schema.StringNullTerminated:
		rest := d.buf[d.off:]
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			d.off = len(d.buf)
			return protocol.StringValue(text(rest)), true
		}
		d.off += end + 1
		return protocol.StringValue(text(rest[:end])), true
	}
	if !d.need(id, size) {
		return protocol.Value{}, false
	}
	raw := d.buf[d.off : d.off+size]
	d.off += size
	if n.Mode() == schema.StringFixed {
		raw = bytes.TrimRight(raw, "\x00")
	}
	return protocol.StringValue(text(raw)), true
}

func (d *decoder) array(n *schema.ArrayNode, scope *protocol.Record) (protocol.Value, bool) {
	id := n.ID()
	elem := n.Element()
	var count int
	switch n.Mode() {
	case schema.ArrayFixed:
		count = n.Count()
	case schema.ArrayRefField:
		count = refCount(scope, n.Ref())
		if !d.fits(id, elem, count) {
			return protocol.Value{}, false
		}
	case schema.ArrayLengthPrefixed:
		var ok bool
		if count, ok = d.prefix(id, n.Prefix()); !ok {
			return protocol.Value{}, false
		}
		if !d.fits(id, elem, count) {
			return protocol.Value{}, false
		}
	case schema.ArrayReadToEnd:
		if w := d.t.Node(elem).SizeInBytes(); w > 0 {
			count = (len(d.buf) - d.off) / w
		}
	}

	items := make([]protocol.Value, 0, min(count, len(d.buf)-d.off+1))
	d.indices = append(d.indices, 0)
	for i := 0; i < count; i++ {
		d.indices[len(d.indices)-1] = i
		v, ok := d.value(elem, scope)
		if !ok {
			return protocol.Value{}, false
		}
		items = append(items, v)
	}
	d.indices = d.indices[:len(d.indices)-1]
	return protocol.ListValue(items...), true
}

// fits checks a count taken from the buffer against the bytes left.
// Elements that can decode from zero bytes may number at most one more
// than the remaining bytes.
func (d *decoder) fits(id, elem schema.NodeID, count int) bool {
	rest := len(d.buf) - d.off
	w := minWidth(d.t, elem)
	if w == 0 {
		return count <= rest+1 || d.need(id, count-1)
	}
	if count <= rest/w {
		return true
	}
	required := max(math.MaxInt32, rest+1)
	if count <= math.MaxInt32/w {
		required = count * w
	}
	return d.need(id, required)
}

// minWidth is the fewest bytes node id can decode from.
func minWidth(t *schema.Tree, id schema.NodeID) int {
	switch n := t.Node(id).(type) {
	case *schema.FieldNode:
		return n.Primitive().Width()
	case *schema.StringNode:
		switch n.Mode() {
		case schema.StringFixed:
			return n.Length()
		case schema.StringLengthPrefixed:
			return n.Prefix().Width()
		}
	case *schema.ArrayNode:
		switch n.Mode() {
		case schema.ArrayFixed:
			return n.Count() * minWidth(t, n.Element())
		case schema.ArrayLengthPrefixed:
			return n.Prefix().Width()
		}
	case *schema.BlockNode:
		w := 0
		for _, c := range t.Children(id) {
			w += minWidth(t, c)
		}
		return w
	}
	return 0
}

func text(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
