package schema

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Tree is one compiled schema. It is immutable after Build and safe to
// share across goroutines.
type Tree struct {
	name  string
	id    uint32
	view  bool
	nodes []Node
}

func (t *Tree) Name() string { return t.name }

// ID is the numeric schema identifier, 0 when unassigned.
func (t *Tree) ID() uint32 { return t.id }

func (t *Tree) IsView() bool { return t.view }

func (t *Tree) Root() NodeID { return 0 }

func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

func (t *Tree) Children(id NodeID) []NodeID {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	return baseOf(n).children
}

// TopLevel returns the depth-0 nodes in declaration order.
func (t *Tree) TopLevel() []NodeID {
	return t.Children(t.Root())
}

// IsFixedSize reports whether every top-level node is fixed size.
func (t *Tree) IsFixedSize() bool { return t.nodes[0].IsFixedSize() }

// SizeInBytes is the static encoded size, 0 for dynamic schemas.
func (t *Tree) SizeInBytes() int { return t.nodes[0].SizeInBytes() }

// Unwrap skips conditional wrappers and returns the node they guard.
func (t *Tree) Unwrap(id NodeID) NodeID {
	for {
		c, ok := t.Node(id).(*ConditionalNode)
		if !ok {
			return id
		}
		id = c.Child()
	}
}

// FieldName is the declared name of a top-level slot, looking through
// conditional wrappers.
func (t *Tree) FieldName(id NodeID) string {
	return t.Node(t.Unwrap(id)).Name()
}

// ChildByName finds a named child of id, looking through conditionals.
func (t *Tree) ChildByName(id NodeID, name string) (NodeID, bool) {
	for _, c := range t.Children(id) {
		if t.FieldName(c) == name {
			return t.Unwrap(c), true
		}
	}
	return NoNode, false
}

// layout fills in fixed/size for id and its subtree.
func (t *Tree) layout(id NodeID) (bool, int) {
	n := t.nodes[id]
	b := baseOf(n)
	switch v := n.(type) {
	case *FieldNode:
		b.fixed, b.size = true, v.primitive.Width()
	case *StringNode:
		b.fixed, b.size = v.mode == StringFixed, v.length
	case *ArrayNode:
		fixed, size := t.layout(v.Element())
		b.fixed = fixed && v.mode == ArrayFixed
		b.size = v.count * size
	case *ConditionalNode:
		t.layout(v.Child())
		b.fixed, b.size = false, 0
	default:
		b.fixed, b.size = true, 0
		for _, c := range b.children {
			fixed, size := t.layout(c)
			b.fixed = b.fixed && fixed
			b.size += size
		}
	}
	if !b.fixed {
		b.size = 0
	}
	return b.fixed, b.size
}

// IndexMarker stands in for an array index FullName was not given.
const IndexMarker = "[idx]"

// FullName is the canonical dotted path of id. Each array boundary on the
// way down consumes one entry of indices; missing entries render as
// IndexMarker.
func (t *Tree) FullName(id NodeID, indices ...int) string {
	var chain []NodeID
	for cur := id; cur > 0; cur = t.Node(cur).Parent() {
		chain = append(chain, cur)
	}
	var b strings.Builder
	next := 0
	for i := len(chain) - 1; i >= 0; i-- {
		n := t.Node(chain[i])
		if n.Name() != "" {
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(n.Name())
		}
		if n.Kind() == KindArray && i > 0 {
			if next < len(indices) {
				b.WriteByte('[')
				b.WriteString(strconv.Itoa(indices[next]))
				b.WriteByte(']')
			} else {
				b.WriteString(IndexMarker)
			}
			next++
		}
	}
	return b.String()
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(id NodeID, fn func(Node) bool) {
	n := t.Node(id)
	if n == nil || !fn(n) {
		return
	}
	for _, c := range t.Children(id) {
		t.Walk(c, fn)
	}
}

// Dump writes an indented outline of the tree.
func (t *Tree) Dump(w io.Writer) error {
	var err error
	t.Walk(t.Root(), func(n Node) bool {
		if err != nil {
			return false
		}
		indent := strings.Repeat("  ", n.Depth()+1)
		_, err = fmt.Fprintf(w, "%s%s\n", indent, describe(n))
		return true
	})
	return err
}

func describe(n Node) string {
	size := "dynamic"
	if n.IsFixedSize() {
		size = strconv.Itoa(n.SizeInBytes()) + "B"
	}
	switch v := n.(type) {
	case *RootNode:
		return fmt.Sprintf("%s (%s)", v.Name(), size)
	case *FieldNode:
		extra := ""
		if v.IsFlags() {
			extra = " flags"
		} else if v.IsEnum() {
			extra = " enum"
		}
		return fmt.Sprintf("%s %s:%s%s (%s)", v.Name(), v.TypeName(), v.Primitive(), extra, size)
	case *ArrayNode:
		return fmt.Sprintf("%s[] %s (%s)", v.Name(), arraySpec(v), size)
	case *StringNode:
		return fmt.Sprintf("%s string %s (%s)", v.Name(), stringSpec(v), size)
	case *BlockNode:
		return fmt.Sprintf("%s block %s (%s)", v.Name(), v.BlockType(), size)
	case *ConditionalNode:
		parts := make([]string, len(v.clauses))
		for i, c := range v.clauses {
			vals := make([]string, len(c.Values))
			for j, lit := range c.Values {
				vals[j] = lit.String()
			}
			parts[i] = fmt.Sprintf("%s %s %s", c.FieldRef, c.Op, strings.Join(vals, "|"))
		}
		return "if " + strings.Join(parts, " && ")
	}
	return n.Kind().String()
}

func arraySpec(n *ArrayNode) string {
	switch n.Mode() {
	case ArrayFixed:
		return fmt.Sprintf("fixed(%d)", n.Count())
	case ArrayRefField:
		return fmt.Sprintf("ref(%s)", n.Ref())
	case ArrayLengthPrefixed:
		return fmt.Sprintf("prefixed(%s)", n.Prefix())
	}
	return n.Mode().String()
}

func stringSpec(n *StringNode) string {
	switch n.Mode() {
	case StringFixed:
		return fmt.Sprintf("fixed(%d)", n.Length())
	case StringRefField:
		return fmt.Sprintf("ref(%s)", n.Ref())
	case StringLengthPrefixed:
		return fmt.Sprintf("prefixed(%s)", n.Prefix())
	}
	return n.Mode().String()
}

// NodeInfo is a JSON-friendly view of a subtree.
type NodeInfo struct {
	Kind     string     `json:"kind"`
	Name     string     `json:"name,omitempty"`
	Detail   string     `json:"detail"`
	Fixed    bool       `json:"fixed"`
	Size     int        `json:"size,omitempty"`
	Nullable bool       `json:"nullable,omitempty"`
	Children []NodeInfo `json:"children,omitempty"`
}

func (t *Tree) Info(id NodeID) NodeInfo {
	n := t.Node(id)
	info := NodeInfo{
		Kind:     n.Kind().String(),
		Name:     n.Name(),
		Detail:   describe(n),
		Fixed:    n.IsFixedSize(),
		Size:     n.SizeInBytes(),
		Nullable: n.IsNullable(),
	}
	for _, c := range t.Children(id) {
		info.Children = append(info.Children, t.Info(c))
	}
	return info
}
