package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrorCode classifies a schema validation failure.
type ErrorCode string

const (
	ErrMissingArraySpec  ErrorCode = "missing-array-spec"
	ErrUnmarkedComposite ErrorCode = "unmarked-composite"
	ErrUnknownType       ErrorCode = "unknown-type"
	ErrOpaqueType        ErrorCode = "opaque-type"
	ErrMissingStringSpec ErrorCode = "missing-string-spec"
	ErrBadRefField       ErrorCode = "bad-ref-field"
	ErrBadPrefixType     ErrorCode = "bad-prefix-type"
	ErrBadArrayMode      ErrorCode = "bad-array-mode"
	ErrBadStringMode     ErrorCode = "bad-string-mode"
	ErrBadCondition      ErrorCode = "bad-condition"
	ErrBlockCycle        ErrorCode = "block-cycle"
	ErrDuplicateField    ErrorCode = "duplicate-field"
	ErrViewTooLarge      ErrorCode = "view-too-large"
	ErrBadNullable       ErrorCode = "bad-nullable"
	ErrDuplicateID       ErrorCode = "duplicate-id"
	ErrDuplicateName     ErrorCode = "duplicate-name"
	ErrBadTypeDecl       ErrorCode = "bad-type-decl"
	ErrEmptyName         ErrorCode = "empty-name"
	ErrHeaderArrayMode   ErrorCode = "header-array-mode"
	ErrHeaderType        ErrorCode = "header-type"
)

// fatal codes stop the build of the schema they occur in.
func (c ErrorCode) fatal() bool {
	return c == ErrUnknownType || c == ErrBlockCycle
}

// MaxViewFields bounds the top-level fields of a view; ids at or above it
// are reserved for null-clear sentinels.
const MaxViewFields = 128

type ValidationError struct {
	Schema string
	Path   string
	Code   ErrorCode
	Reason string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s: [%s] %s", e.Schema, e.Code, e.Reason)
	}
	return fmt.Sprintf("schema: %s field=%s: [%s] %s", e.Schema, e.Path, e.Code, e.Reason)
}

// ValidationList batches every failure found in one pass.
type ValidationList []ValidationError

func (v ValidationList) Error() string {
	switch len(v) {
	case 0:
		return "schema: no validation errors"
	case 1:
		return v[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
	}
}

// Has reports whether any entry carries code.
func (v ValidationList) Has(code ErrorCode) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (v ValidationList) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// AsValidations extracts the validation entries wrapped in err.
func AsValidations(err error) (ValidationList, bool) {
	if err == nil {
		return nil, false
	}
	var list ValidationList
	if errors.As(err, &list) {
		return list, len(list) > 0
	}
	var single ValidationError
	if errors.As(err, &single) {
		return ValidationList{single}, true
	}
	return nil, false
}

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// blockCycles returns the block types that can reach themselves through
// their field lists, sorted by name.
func blockCycles(types map[string]TypeDecl) []string {
	states := make(map[string]visitState, len(types))
	cyclic := make(map[string]bool)

	var visit func(name string, stack []string)
	visit = func(name string, stack []string) {
		switch states[name] {
		case stateVisiting:
			for i := len(stack) - 1; i >= 0; i-- {
				cyclic[stack[i]] = true
				if stack[i] == name {
					break
				}
			}
			return
		case stateDone:
			return
		}
		decl, ok := types[name]
		if !ok || decl.Kind != TypeBlock {
			return
		}
		states[name] = stateVisiting
		stack = append(stack, name)
		for _, f := range decl.Fields {
			elem, _ := elementType(f.Type)
			visit(elem, stack)
		}
		states[name] = stateDone
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		visit(name, nil)
	}

	out := make([]string, 0, len(cyclic))
	for name := range cyclic {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
