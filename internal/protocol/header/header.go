package header

import (
	"fmt"
	"strings"

	"github.com/danmuck/schemawire/internal/protocol"
	"github.com/danmuck/schemawire/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Code is the wire type code of one header record.
type Code uint8

const (
	CodeUint     Code = 0
	CodeFloat    Code = 1
	CodeEntityID Code = 2
	CodeUlong    Code = 3
	CodeByte     Code = 4
	// 5 is unused.
	CodeUshort Code = 6
	CodeTimer  Code = 7
	CodeBool   Code = 8

	// ArrayFlag is added to the scalar code of a fixed-length array.
	ArrayFlag Code = 128
	// CodeInvalid marks a field outside the supported set.
	CodeInvalid Code = 255
)

func (c Code) IsArray() bool { return c != CodeInvalid && c&ArrayFlag != 0 }

// Scalar strips the array flag.
func (c Code) Scalar() Code {
	if c == CodeInvalid {
		return c
	}
	return c &^ ArrayFlag
}

func (c Code) String() string {
	var name string
	switch c.Scalar() {
	case CodeUint:
		name = "uint"
	case CodeFloat:
		name = "float"
	case CodeEntityID:
		name = "entity_id"
	case CodeUlong:
		name = "ulong"
	case CodeByte:
		name = "byte"
	case CodeUshort:
		name = "ushort"
	case CodeTimer:
		name = "timer"
	case CodeBool:
		name = "bool"
	case CodeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
	if c.IsArray() {
		return name + "[]"
	}
	return name
}

const (
	entitySuffix = "EntityId"
	timerSuffix  = "Timer"
)

// scalarCode maps a field to its code. Named types ending in EntityId or
// Timer take precedence over their underlying primitive.
func scalarCode(n *schema.FieldNode) (Code, bool) {
	switch name := n.TypeName(); {
	case strings.HasSuffix(name, entitySuffix):
		return CodeEntityID, true
	case strings.HasSuffix(name, timerSuffix):
		return CodeTimer, true
	}
	if n.IsEnum() {
		return CodeInvalid, false
	}
	switch n.Primitive() {
	case protocol.UInt:
		return CodeUint, true
	case protocol.Float:
		return CodeFloat, true
	case protocol.ULong:
		return CodeUlong, true
	case protocol.Byte:
		return CodeByte, true
	case protocol.UShort:
		return CodeUshort, true
	case protocol.Bool:
		return CodeBool, true
	}
	return CodeInvalid, false
}

type Options struct {
	// EmitInvalid writes unsupported fields with CodeInvalid instead of
	// withholding the header. The validation error is returned either way.
	EmitInvalid bool
}

// Build renders the header of a view schema. When any field falls outside
// the supported set it returns nil and a schema.ValidationList, unless
// opts.EmitInvalid is set.
func Build(t *schema.Tree, opts Options) ([]byte, error) {
	if !t.IsView() {
		return nil, fmt.Errorf("%w: %s", ErrNotView, t.Name())
	}
	var errs schema.ValidationList
	out := appendName(nil, t.Name())
	for i, id := range t.TopLevel() {
		name := t.FieldName(id)
		code, count, verr := describe(t, t.Unwrap(id))
		if verr != nil {
			verr.Schema, verr.Path = t.Name(), name
			errs = append(errs, *verr)
		}
		out = append(out, byte(i), byte(code), byte(count))
		out = appendName(out, name)
	}
	if len(errs) == 0 {
		return out, nil
	}
	log.Warn().
		Str("schema", t.Name()).
		Int("invalid", len(errs)).
		Bool("emit_invalid", opts.EmitInvalid).
		Msg("header.Build unsupported fields")
	if opts.EmitInvalid {
		return out, errs
	}
	return nil, errs
}

// Size is the byte length of the header Build would produce for t.
func Size(t *schema.Tree) int {
	n := len(t.Name()) + 1
	for _, id := range t.TopLevel() {
		n += 3 + len(t.FieldName(id)) + 1
	}
	return n
}

func describe(t *schema.Tree, id schema.NodeID) (Code, int, *schema.ValidationError) {
	switch n := t.Node(id).(type) {
	case *schema.FieldNode:
		if code, ok := scalarCode(n); ok {
			return code, 1, nil
		}
		return CodeInvalid, 1, unsupported(n.TypeName())
	case *schema.ArrayNode:
		elem, ok := t.Node(n.Element()).(*schema.FieldNode)
		if !ok {
			return CodeInvalid, 0, unsupported(t.Node(n.Element()).Kind().String())
		}
		code, ok := scalarCode(elem)
		if !ok {
			return CodeInvalid, 0, unsupported(elem.TypeName() + "[]")
		}
		if n.Mode() != schema.ArrayFixed {
			return CodeInvalid, 0, &schema.ValidationError{
				Code:   schema.ErrHeaderArrayMode,
				Reason: fmt.Sprintf("array mode %s is not fixed", n.Mode()),
			}
		}
		if n.Count() > 255 {
			return CodeInvalid, 0, &schema.ValidationError{
				Code:   schema.ErrHeaderArrayMode,
				Reason: fmt.Sprintf("fixed count %d does not fit in a byte", n.Count()),
			}
		}
		return code + ArrayFlag, n.Count(), nil
	default:
		return CodeInvalid, 0, unsupported(n.Kind().String())
	}
}

func unsupported(what string) *schema.ValidationError {
	return &schema.ValidationError{
		Code:   schema.ErrHeaderType,
		Reason: fmt.Sprintf("type %s has no header code", what),
	}
}

func appendName(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}
