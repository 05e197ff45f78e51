package schema

import (
	"fmt"

	"github.com/danmuck/schemawire/internal/protocol"
)

// NodeID indexes a node in its Tree's arena.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

type NodeKind uint8

const (
	KindRoot NodeKind = iota
	KindField
	KindArray
	KindString
	KindBlock
	KindConditional
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindField:
		return "field"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindBlock:
		return "block"
	case KindConditional:
		return "conditional"
	default:
		return fmt.Sprintf("node(%d)", k)
	}
}

// Node is one immutable vertex of a compiled schema. Children and parent
// are arena indices into the owning Tree; the parent link is used for
// path reconstruction only.
type Node interface {
	ID() NodeID
	Kind() NodeKind
	// Name is empty for synthetic wrappers (conditionals, array elements).
	Name() string
	Depth() int
	Parent() NodeID
	Children() []NodeID
	IsFixedSize() bool
	// SizeInBytes is the encoded size when IsFixedSize is true, else 0.
	SizeInBytes() int
	IsNullable() bool
}

type nodeBase struct {
	id       NodeID
	parent   NodeID
	name     string
	depth    int
	children []NodeID
	fixed    bool
	size     int
	nullable bool
}

func (n *nodeBase) ID() NodeID { return n.id }
func (n *nodeBase) Name() string { return n.name }
func (n *nodeBase) Depth() int { return n.depth }
func (n *nodeBase) Parent() NodeID { return n.parent }
func (n *nodeBase) IsFixedSize() bool { return n.fixed }
func (n *nodeBase) IsNullable() bool { return n.nullable }

func (n *nodeBase) SizeInBytes() int {
	if !n.fixed {
		return 0
	}
	return n.size
}

func (n *nodeBase) Children() []NodeID {
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out
}

func (n *nodeBase) base() *nodeBase { return n }

func baseOf(n Node) *nodeBase {
	return n.(interface{ base() *nodeBase }).base()
}

// RootNode anchors a schema at depth -1.
type RootNode struct {
	nodeBase
}

func (*RootNode) Kind() NodeKind { return KindRoot }

// FieldNode is a scalar or enum leaf.
type FieldNode struct {
	nodeBase
	typeName   string
	primitive  protocol.PrimitiveType
	isEnum     bool
	isFlags    bool
	underlying protocol.PrimitiveType
}

func (*FieldNode) Kind() NodeKind { return KindField }

// TypeName is the declared type, e.g. "int", "Color" or "PlayerEntityId".
func (n *FieldNode) TypeName() string { return n.typeName }

// Primitive is the wire type; for enums it is the underlying integer type.
func (n *FieldNode) Primitive() protocol.PrimitiveType { return n.primitive }

func (n *FieldNode) IsEnum() bool { return n.isEnum }
func (n *FieldNode) IsFlags() bool { return n.isFlags }
func (n *FieldNode) Underlying() protocol.PrimitiveType { return n.underlying }

// ArrayMode selects how an array's element count is resolved.
type ArrayMode uint8

const (
	ArrayFixed ArrayMode = iota
	ArrayRefField
	ArrayLengthPrefixed
	ArrayReadToEnd
)

func (m ArrayMode) String() string {
	switch m {
	case ArrayFixed:
		return "fixed"
	case ArrayRefField:
		return "ref"
	case ArrayLengthPrefixed:
		return "prefixed"
	case ArrayReadToEnd:
		return "to_end"
	default:
		return fmt.Sprintf("array_mode(%d)", m)
	}
}

// ArrayNode wraps exactly one element subtree.
type ArrayNode struct {
	nodeBase
	mode   ArrayMode
	count  int
	ref    string
	prefix protocol.PrimitiveType
}

func (*ArrayNode) Kind() NodeKind { return KindArray }

func (n *ArrayNode) Mode() ArrayMode { return n.mode }
func (n *ArrayNode) Count() int { return n.count }
func (n *ArrayNode) Ref() string { return n.ref }
func (n *ArrayNode) Prefix() protocol.PrimitiveType { return n.prefix }
func (n *ArrayNode) Element() NodeID { return n.children[0] }

// StringMode selects how a string's byte length is resolved.
type StringMode uint8

const (
	StringFixed StringMode = iota
	StringRefField
	StringLengthPrefixed
	StringNullTerminated
)

func (m StringMode) String() string {
	switch m {
	case StringFixed:
		return "fixed"
	case StringRefField:
		return "ref"
	case StringLengthPrefixed:
		return "prefixed"
	case StringNullTerminated:
		return "null_terminated"
	default:
		return fmt.Sprintf("string_mode(%d)", m)
	}
}

// StringNode is a UTF-8 text leaf.
type StringNode struct {
	nodeBase
	mode   StringMode
	length int
	ref    string
	prefix protocol.PrimitiveType
}

func (*StringNode) Kind() NodeKind { return KindString }

func (n *StringNode) Mode() StringMode { return n.mode }
func (n *StringNode) Length() int { return n.length }
func (n *StringNode) Ref() string { return n.ref }
func (n *StringNode) Prefix() protocol.PrimitiveType { return n.prefix }

// BlockNode holds the fields of a reusable block type.
type BlockNode struct {
	nodeBase
	blockType string
}

func (*BlockNode) Kind() NodeKind { return KindBlock }

func (n *BlockNode) BlockType() string { return n.blockType }

// CompareOp is a predicate operator.
type CompareOp uint8

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpHasFlag
	OpLacksFlag
)

func (o CompareOp) String() string {
	switch o {
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpHasFlag:
		return "has_flag"
	case OpLacksFlag:
		return "lacks_flag"
	default:
		return fmt.Sprintf("op(%d)", o)
	}
}

// Clause is one predicate. Values are OR-combined.
type Clause struct {
	FieldRef string
	Op       CompareOp
	Values   []protocol.Value

	path      []protocol.PathSegment
	inScope   bool
	isFloat   bool
	primitive protocol.PrimitiveType
}

// Path is the parsed FieldRef.
func (c Clause) Path() []protocol.PathSegment { return c.path }

// InScope reports whether FieldRef resolves against the enclosing record
// rather than the schema root.
func (c Clause) InScope() bool { return c.inScope }

// Eval applies the clause to the referenced field's current value. v is
// first truncated to the field's wire type.
func (c Clause) Eval(v protocol.Value) bool {
	v = protocol.Normalize(c.primitive, v)
	for _, lit := range c.Values {
		if c.match(v, lit) {
			return true
		}
	}
	return false
}

func (c Clause) match(v, lit protocol.Value) bool {
	switch c.Op {
	case OpEqual:
		if c.isFloat {
			return v.AsFloat64() == lit.AsFloat64()
		}
		return v.AsUint64() == lit.AsUint64()
	case OpNotEqual:
		if c.isFloat {
			return v.AsFloat64() != lit.AsFloat64()
		}
		return v.AsUint64() != lit.AsUint64()
	case OpHasFlag:
		return v.AsUint64()&lit.AsUint64() != 0
	case OpLacksFlag:
		return v.AsUint64()&lit.AsUint64() == 0
	}
	return false
}

// ConditionalNode wraps exactly one subtree whose presence is decided at
// runtime. Clauses are AND-combined.
type ConditionalNode struct {
	nodeBase
	clauses []Clause
}

func (*ConditionalNode) Kind() NodeKind { return KindConditional }

func (n *ConditionalNode) Clauses() []Clause {
	out := make([]Clause, len(n.clauses))
	copy(out, n.clauses)
	return out
}

func (n *ConditionalNode) Child() NodeID { return n.children[0] }

// Holds evaluates every clause against live values. scope is the record
// enclosing the conditional and root the schema's top-level record.
func (n *ConditionalNode) Holds(scope, root *protocol.Record) bool {
	for _, c := range n.clauses {
		src := root
		if c.inScope {
			src = scope
		}
		v, _ := src.LookupSegments(c.path)
		if !c.Eval(v) {
			return false
		}
	}
	return true
}
