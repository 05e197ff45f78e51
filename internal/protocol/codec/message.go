package codec

import (
	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/danmuck/schemawire/internal/protocol/schema"
)

// Message is one schema instance: live values plus the diagnostics of its
// decode calls. It is not safe for concurrent use.
type Message struct {
	engine *Engine
	tree   *schema.Tree
	values *protocol.Record
	diags  []Diagnostic
}

func (e *Engine) NewMessage(t *schema.Tree) *Message {
	return &Message{engine: e, tree: t, values: protocol.NewRecord()}
}

func (m *Message) Tree() *schema.Tree { return m.tree }

// Values exposes the live record. Mutations are visible to the next Pack.
func (m *Message) Values() *protocol.Record { return m.values }

func (m *Message) Set(name string, v protocol.Value) { m.values.Set(name, v) }

func (m *Message) Get(name string) protocol.Value { return m.values.Value(name) }

// Unpack decodes buf into the message. It returns the bytes consumed, or
// the negated offset of a bounds failure.
func (m *Message) Unpack(buf []byte) int {
	n, diag := m.engine.Unpack(m.tree, buf, m.values)
	if diag != nil {
		m.record(*diag)
	}
	return n
}

// Decode is Unpack with an error in place of the negative offset.
func (m *Message) Decode(buf []byte) (int, error) {
	n, diag := m.engine.Unpack(m.tree, buf, m.values)
	if diag != nil {
		m.record(*diag)
		return -n, &BoundsError{Diagnostic: *diag}
	}
	return n, nil
}

// UnpackField decodes one top-level slot starting at buf[off]. It returns
// the end offset, or the negated offset of a bounds failure.
func (m *Message) UnpackField(id schema.NodeID, buf []byte, off int) int {
	n, diag := m.engine.UnpackField(m.tree, id, buf, off, m.values)
	if diag != nil {
		m.record(*diag)
	}
	return n
}

// DecodeField is UnpackField with an error in place of the negative
// offset. On failure the returned offset is where decoding stopped.
func (m *Message) DecodeField(id schema.NodeID, buf []byte, off int) (int, error) {
	n, diag := m.engine.UnpackField(m.tree, id, buf, off, m.values)
	if diag != nil {
		m.record(*diag)
		return -n, &BoundsError{Diagnostic: *diag}
	}
	return n, nil
}

// PackField writes one top-level slot payload at buf[0].
func (m *Message) PackField(id schema.NodeID, buf []byte) int {
	return m.engine.PackField(m.tree, id, m.values, buf)
}

func (m *Message) FieldSize(id schema.NodeID) int {
	return m.engine.FieldSize(m.tree, id, m.values)
}

func (m *Message) Pack(buf []byte) int {
	return m.engine.Pack(m.tree, m.values, buf)
}

func (m *Message) PackedSize() int {
	return m.engine.PackedSize(m.tree, m.values)
}

func (m *Message) Marshal() []byte {
	return m.engine.Marshal(m.tree, m.values)
}

func (m *Message) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(m.diags))
	copy(out, m.diags)
	return out
}

func (m *Message) ClearDiagnostics() { m.diags = m.diags[:0] }

func (m *Message) record(d Diagnostic) {
	cfg := m.engine.cfg
	if !cfg.Diagnostics {
		return
	}
	if cfg.MaxDiagnostics > 0 && len(m.diags) >= cfg.MaxDiagnostics {
		m.diags = append(m.diags[:0], m.diags[1:]...)
	}
	m.diags = append(m.diags, d)
}
