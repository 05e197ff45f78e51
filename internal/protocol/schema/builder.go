package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Builder compiles descriptions against a fixed set of declared types.
// A Builder is read-only after NewBuilder and may be shared.
type Builder struct {
	types    map[string]TypeDecl
	cycles   map[string]bool
	declErrs ValidationList
	logger   *zerolog.Logger
}

type Option func(*Builder)

// WithLogger overrides the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.logger = &l }
}

func NewBuilder(types []TypeDecl, opts ...Option) *Builder {
	b := &Builder{
		types:  make(map[string]TypeDecl, len(types)),
		cycles: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, decl := range types {
		b.declare(decl)
	}
	for _, name := range blockCycles(b.types) {
		b.cycles[name] = true
	}
	return b
}

func (b *Builder) log() *zerolog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return &log.Logger
}

func (b *Builder) declare(decl TypeDecl) {
	fail := func(code ErrorCode, format string, args ...any) {
		b.declErrs = append(b.declErrs, ValidationError{
			Schema: decl.Name,
			Code:   code,
			Reason: fmt.Sprintf(format, args...),
		})
	}
	name := strings.TrimSpace(decl.Name)
	switch {
	case name == "":
		fail(ErrEmptyName, "type declaration without a name")
		return
	case protocol.IsPrimitiveName(name) || name == "string":
		fail(ErrBadTypeDecl, "type name %q shadows a builtin", name)
		return
	}
	if _, dup := b.types[name]; dup {
		fail(ErrDuplicateName, "type %q declared twice", name)
		return
	}
	switch decl.Kind {
	case TypeEnum:
		if decl.Underlying == "" {
			decl.Underlying = "int"
		}
		under, err := protocol.ParsePrimitive(decl.Underlying)
		if err != nil || !under.IsInteger() {
			fail(ErrBadTypeDecl, "enum underlying type %q is not an integer", decl.Underlying)
			return
		}
	case TypeAlias:
		if _, err := protocol.ParsePrimitive(decl.Underlying); err != nil {
			fail(ErrBadTypeDecl, "alias underlying type %q is not a primitive", decl.Underlying)
			return
		}
	case TypeBlock, TypeStruct, TypeOpaque:
	default:
		fail(ErrBadTypeDecl, "unknown type kind %q", decl.Kind)
		return
	}
	decl.Name = name
	b.types[name] = decl
}

// TypeErrors returns problems found in the type declarations themselves.
func (b *Builder) TypeErrors() error { return b.declErrs.err() }

type scope struct {
	node     NodeID
	declared map[string]NodeID
}

func newScope(node NodeID) *scope {
	return &scope{node: node, declared: make(map[string]NodeID)}
}

type build struct {
	b    *Builder
	tree *Tree
	root *scope
	errs ValidationList
}

// Build compiles one description in a single left-to-right pass. Every
// independent problem is collected; a non-nil error is always a
// ValidationList and no tree is returned with it.
func (b *Builder) Build(desc Description) (*Tree, error) {
	name := strings.TrimSpace(desc.Name)
	bld := &build{
		b:    b,
		tree: &Tree{name: name, id: desc.ID, view: desc.View},
	}
	root := &RootNode{nodeBase{id: 0, parent: NoNode, name: name, depth: -1}}
	bld.tree.nodes = append(bld.tree.nodes, root)
	bld.root = newScope(0)

	if name == "" {
		bld.fail("", ErrEmptyName, "schema without a name")
	}
	if desc.View && len(desc.Fields) > MaxViewFields {
		bld.fail("", ErrViewTooLarge, "view has %d top-level fields, limit is %d", len(desc.Fields), MaxViewFields)
	}
	for _, f := range desc.Fields {
		bld.field(0, bld.root, f, nil)
		if bld.hasFatal() {
			break
		}
	}

	if len(bld.errs) > 0 {
		b.log().Warn().
			Str("schema", name).
			Int("errors", len(bld.errs)).
			Str("first", bld.errs[0].Error()).
			Msg("schema.Build failed")
		return nil, bld.errs
	}
	bld.tree.layout(0)
	b.log().Debug().
		Str("schema", name).
		Int("fields", len(desc.Fields)).
		Int("nodes", bld.tree.Len()).
		Bool("fixed", bld.tree.IsFixedSize()).
		Int("size", bld.tree.SizeInBytes()).
		Msg("schema.Build ok")
	return bld.tree, nil
}

func (bld *build) fail(path string, code ErrorCode, format string, args ...any) {
	bld.errs = append(bld.errs, ValidationError{
		Schema: bld.tree.name,
		Path:   path,
		Code:   code,
		Reason: fmt.Sprintf(format, args...),
	})
}

func (bld *build) hasFatal() bool {
	for _, e := range bld.errs {
		if e.Code.fatal() {
			return true
		}
	}
	return false
}

func (bld *build) add(parent NodeID, n Node) NodeID {
	id := NodeID(len(bld.tree.nodes))
	nb := baseOf(n)
	pb := baseOf(bld.tree.nodes[parent])
	nb.id = id
	nb.parent = parent
	nb.depth = pb.depth + 1
	pb.children = append(pb.children, id)
	bld.tree.nodes = append(bld.tree.nodes, n)
	return id
}

func (bld *build) pathOf(parent NodeID, name string) string {
	prefix := bld.tree.FullName(parent)
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// field attaches one descriptor under parent. stack holds the block types
// currently being expanded.
func (bld *build) field(parent NodeID, sc *scope, fd FieldDesc, stack []string) {
	name := strings.TrimSpace(fd.Name)
	path := bld.pathOf(parent, name)
	if name == "" {
		bld.fail(path, ErrEmptyName, "field without a name")
		return
	}
	if _, dup := sc.declared[name]; dup {
		bld.fail(path, ErrDuplicateField, "field %q declared twice in the same scope", name)
		return
	}
	topLevel := sc == bld.root
	if fd.Nullable && !(topLevel && bld.tree.view) {
		bld.fail(path, ErrBadNullable, "nullable is only allowed on top-level fields of a view")
	}

	insert := parent
	first := NoNode
	if len(fd.When) > 0 {
		clauses, ok := bld.clauses(sc, path, fd.When)
		if !ok {
			return
		}
		insert = bld.add(parent, &ConditionalNode{clauses: clauses})
		first = insert
	}

	elemType, isArray := elementType(fd.Type)
	elemParent, elemName := insert, name
	var arr *ArrayNode
	if isArray {
		if fd.Array == nil {
			bld.fail(path, ErrMissingArraySpec, "array type %q has no array modifier", fd.Type)
			return
		}
		var ok bool
		arr, ok = bld.arrayNode(sc, path, name, fd.Array)
		if !ok {
			return
		}
		elemParent = bld.add(insert, arr)
		elemName = ""
		if first == NoNode {
			first = elemParent
		}
	} else if fd.Array != nil {
		bld.fail(path, ErrBadArrayMode, "array modifier on non-array type %q", fd.Type)
		return
	}

	leaf := bld.element(elemParent, sc, path, elemName, elemType, fd.String, stack)
	if leaf == NoNode {
		return
	}
	if first == NoNode {
		first = leaf
	}
	if arr != nil && arr.mode == ArrayReadToEnd {
		if fixed, _ := bld.tree.layout(leaf); !fixed {
			bld.fail(path, ErrBadArrayMode, "to_end array needs a fixed-size element")
			return
		}
	}
	if topLevel && fd.Nullable {
		baseOf(bld.tree.nodes[first]).nullable = true
	}
	sc.declared[name] = bld.tree.Unwrap(first)
}

// element builds the non-array part of a field: a string, scalar, enum or
// block.
func (bld *build) element(parent NodeID, sc *scope, path, name, typ string, str *StringSpec, stack []string) NodeID {
	if typ == "string" {
		if str == nil {
			bld.fail(path, ErrMissingStringSpec, "string field has no string modifier")
			return NoNode
		}
		s, ok := bld.stringNode(sc, path, name, str)
		if !ok {
			return NoNode
		}
		return bld.add(parent, s)
	}
	if str != nil {
		bld.fail(path, ErrBadStringMode, "string modifier on non-string type %q", typ)
		return NoNode
	}
	if prim, err := protocol.ParsePrimitive(typ); err == nil {
		return bld.add(parent, &FieldNode{
			nodeBase:   nodeBase{name: name},
			typeName:   typ,
			primitive:  prim,
			underlying: prim,
		})
	}

	decl, ok := bld.b.types[typ]
	if !ok {
		bld.fail(path, ErrUnknownType, "unknown type %q", typ)
		return NoNode
	}
	switch decl.Kind {
	case TypeBlock:
		if bld.b.cycles[typ] || contains(stack, typ) {
			bld.fail(path, ErrBlockCycle, "block %q contains itself", typ)
			return NoNode
		}
		id := bld.add(parent, &BlockNode{nodeBase: nodeBase{name: name}, blockType: typ})
		inner := newScope(id)
		next := append(append([]string(nil), stack...), typ)
		for _, f := range decl.Fields {
			bld.field(id, inner, f, next)
		}
		return id
	case TypeEnum:
		under, _ := protocol.ParsePrimitive(decl.Underlying)
		return bld.add(parent, &FieldNode{
			nodeBase:   nodeBase{name: name},
			typeName:   typ,
			primitive:  under,
			isEnum:     true,
			isFlags:    decl.Flags,
			underlying: under,
		})
	case TypeAlias:
		under, _ := protocol.ParsePrimitive(decl.Underlying)
		return bld.add(parent, &FieldNode{
			nodeBase:   nodeBase{name: name},
			typeName:   typ,
			primitive:  under,
			underlying: under,
		})
	case TypeStruct:
		bld.fail(path, ErrUnmarkedComposite, "type %q is a composite not marked as block", typ)
	case TypeOpaque:
		bld.fail(path, ErrOpaqueType, "type %q is an opaque reference type", typ)
	}
	return NoNode
}

func (bld *build) arrayNode(sc *scope, path, name string, spec *ArraySpec) (*ArrayNode, bool) {
	n := &ArrayNode{nodeBase: nodeBase{name: name}}
	switch strings.ToLower(strings.TrimSpace(spec.Mode)) {
	case "fixed":
		if spec.Count < 0 {
			bld.fail(path, ErrBadArrayMode, "fixed count %d is negative; use mode to_end", spec.Count)
			return nil, false
		}
		n.mode, n.count = ArrayFixed, spec.Count
	case "ref":
		if !bld.refField(sc, path, spec.Ref) {
			return nil, false
		}
		n.mode, n.ref = ArrayRefField, spec.Ref
	case "prefixed":
		prefix, ok := bld.prefixType(path, spec.Prefix)
		if !ok {
			return nil, false
		}
		n.mode, n.prefix = ArrayLengthPrefixed, prefix
	case "to_end":
		n.mode = ArrayReadToEnd
	default:
		bld.fail(path, ErrBadArrayMode, "unknown array mode %q", spec.Mode)
		return nil, false
	}
	return n, true
}

func (bld *build) stringNode(sc *scope, path, name string, spec *StringSpec) (*StringNode, bool) {
	n := &StringNode{nodeBase: nodeBase{name: name}}
	switch strings.ToLower(strings.TrimSpace(spec.Mode)) {
	case "fixed":
		if spec.Length < 0 {
			bld.fail(path, ErrBadStringMode, "fixed length %d is negative", spec.Length)
			return nil, false
		}
		n.mode, n.length = StringFixed, spec.Length
	case "ref":
		if !bld.refField(sc, path, spec.Ref) {
			return nil, false
		}
		n.mode, n.ref = StringRefField, spec.Ref
	case "prefixed":
		prefix, ok := bld.prefixType(path, spec.Prefix)
		if !ok {
			return nil, false
		}
		n.mode, n.prefix = StringLengthPrefixed, prefix
	case "null_terminated", "null":
		n.mode = StringNullTerminated
	default:
		bld.fail(path, ErrBadStringMode, "unknown string mode %q", spec.Mode)
		return nil, false
	}
	return n, true
}

func (bld *build) prefixType(path, name string) (protocol.PrimitiveType, bool) {
	if name == "" {
		name = "int"
	}
	prim, err := protocol.ParsePrimitive(name)
	if err != nil || !prim.IsInteger() {
		bld.fail(path, ErrBadPrefixType, "length prefix type %q is not an integer", name)
		return protocol.Invalid, false
	}
	return prim, true
}

// refField checks that ref names an integer field declared earlier in sc.
func (bld *build) refField(sc *scope, path, ref string) bool {
	id, ok := sc.declared[ref]
	if !ok {
		bld.fail(path, ErrBadRefField, "length field %q is not declared earlier in the same scope", ref)
		return false
	}
	fn, ok := bld.tree.nodes[id].(*FieldNode)
	if !ok || !fn.primitive.IsInteger() {
		bld.fail(path, ErrBadRefField, "length field %q is not an integer field", ref)
		return false
	}
	return true
}

func (bld *build) clauses(sc *scope, path string, descs []ClauseDesc) ([]Clause, bool) {
	out := make([]Clause, 0, len(descs))
	ok := true
	for _, cd := range descs {
		c, err := bld.clause(sc, cd)
		if err != nil {
			bld.fail(path, ErrBadCondition, "%v", err)
			ok = false
			continue
		}
		out = append(out, c)
	}
	return out, ok
}

func (bld *build) clause(sc *scope, cd ClauseDesc) (Clause, error) {
	op, err := parseOp(cd.Op)
	if err != nil {
		return Clause{}, err
	}
	segs, err := protocol.ParsePath(cd.Field)
	if err != nil {
		return Clause{}, err
	}
	target, inScope, found := bld.resolve(sc, segs)
	if !found {
		return Clause{}, fmt.Errorf("condition references unknown or later field %q", cd.Field)
	}
	fn, isField := bld.tree.nodes[target].(*FieldNode)
	if !isField {
		return Clause{}, fmt.Errorf("condition field %q is not a scalar", cd.Field)
	}
	if (op == OpHasFlag || op == OpLacksFlag) && !fn.primitive.IsInteger() {
		return Clause{}, fmt.Errorf("flag test on non-integer field %q", cd.Field)
	}
	if len(cd.Values) == 0 {
		return Clause{}, fmt.Errorf("condition on %q has no values", cd.Field)
	}
	c := Clause{
		FieldRef:  cd.Field,
		Op:        op,
		path:      segs,
		inScope:   inScope,
		isFloat:   fn.primitive.IsFloat(),
		primitive: fn.primitive,
	}
	for _, raw := range cd.Values {
		v, err := bld.literal(fn, raw)
		if err != nil {
			return Clause{}, fmt.Errorf("condition on %q: %w", cd.Field, err)
		}
		c.Values = append(c.Values, v)
	}
	return c, nil
}

func parseOp(op string) (CompareOp, error) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "eq", "equal", "==", "":
		return OpEqual, nil
	case "ne", "not_equal", "!=":
		return OpNotEqual, nil
	case "has_flag", "has":
		return OpHasFlag, nil
	case "lacks_flag", "lacks":
		return OpLacksFlag, nil
	}
	return 0, fmt.Errorf("unknown condition op %q", op)
}

// resolve finds the node a condition path names, first in the enclosing
// scope and then at the schema root. Only fields already declared are
// visible.
func (bld *build) resolve(sc *scope, segs []protocol.PathSegment) (NodeID, bool, bool) {
	if id, ok := bld.walk(sc, segs); ok {
		return id, sc != bld.root, true
	}
	if sc != bld.root {
		if id, ok := bld.walk(bld.root, segs); ok {
			return id, false, true
		}
	}
	return NoNode, false, false
}

func (bld *build) walk(sc *scope, segs []protocol.PathSegment) (NodeID, bool) {
	id, ok := sc.declared[segs[0].Name]
	if !ok {
		return NoNode, false
	}
	for i, seg := range segs {
		if i > 0 {
			if _, isBlock := bld.tree.nodes[id].(*BlockNode); !isBlock {
				return NoNode, false
			}
			if id, ok = bld.tree.ChildByName(id, seg.Name); !ok {
				return NoNode, false
			}
		}
		for range seg.Indices {
			arr, isArray := bld.tree.nodes[id].(*ArrayNode)
			if !isArray {
				return NoNode, false
			}
			id = bld.tree.Unwrap(arr.Element())
		}
	}
	return id, true
}

func (bld *build) literal(fn *FieldNode, raw string) (protocol.Value, error) {
	s := strings.TrimSpace(raw)
	if fn.isEnum {
		if v, ok := bld.member(fn.typeName, s); ok {
			return protocol.Normalize(fn.primitive, protocol.IntValue(v)), nil
		}
	}
	switch {
	case fn.primitive == protocol.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return protocol.Value{}, fmt.Errorf("value %q is not a bool", raw)
		}
		return protocol.BoolValue(b), nil
	case fn.primitive.IsFloat():
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return protocol.Value{}, fmt.Errorf("value %q is not a number", raw)
		}
		return protocol.FloatValue(f), nil
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return protocol.Normalize(fn.primitive, protocol.IntValue(i)), nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return protocol.Normalize(fn.primitive, protocol.UintValue(u)), nil
	}
	return protocol.Value{}, fmt.Errorf("value %q is not an integer or %s member", raw, fn.typeName)
}

// member resolves "Name" or "Type.Name" against an enum declaration. Flag
// combinations may be written "A|B".
func (bld *build) member(typ, s string) (int64, bool) {
	decl := bld.b.types[typ]
	var out int64
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, typ+".")
		found := false
		for _, m := range decl.Members {
			if m.Name == part {
				out |= m.Value
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return out, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
