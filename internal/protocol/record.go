package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is an ordered set of named field values. It is not safe for
// concurrent mutation.
type Record struct {
	order  []string
	fields map[string]Value
}

func NewRecord() *Record {
	return &Record{fields: make(map[string]Value)}
}

// Set assigns name, appending it to the field order on first use.
func (r *Record) Set(name string, v Value) {
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, ok := r.fields[name]; !ok {
		r.order = append(r.order, name)
	}
	r.fields[name] = v
}

func (r *Record) Get(name string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.fields[name]
	return v, ok
}

// Value returns the named value, or null when absent.
func (r *Record) Value(name string) Value {
	v, _ := r.Get(name)
	return v
}

func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r *Record) Delete(name string) {
	if r == nil {
		return
	}
	if _, ok := r.fields[name]; !ok {
		return
	}
	delete(r.fields, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Names returns field names in first-assignment order.
func (r *Record) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		order:  make([]string, len(r.order)),
		fields: make(map[string]Value, len(r.fields)),
	}
	copy(out.order, r.order)
	for k, v := range r.fields {
		out.fields[k] = v.Clone()
	}
	return out
}

// Equal ignores field order.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for _, name := range r.Names() {
		ov, ok := o.Get(name)
		if !ok || !r.fields[name].Equal(ov) {
			return false
		}
	}
	return true
}

// Map converts the record into plain Go values for JSON output.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, name := range r.Names() {
		out[name] = r.fields[name].Interface()
	}
	return out
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range r.Names() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(r.fields[name].String())
	}
	b.WriteByte('}')
	return b.String()
}

// PathSegment is one step of a dotted field path.
type PathSegment struct {
	Name    string
	Indices []int
}

// ParsePath splits "a.b[2].c" into segments.
func ParsePath(path string) ([]PathSegment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, ".")
	out := make([]PathSegment, 0, len(parts))
	for _, part := range parts {
		seg := PathSegment{}
		name := part
		if open := strings.IndexByte(part, '['); open >= 0 {
			name = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				idx, err := strconv.Atoi(rest[1:end])
				if err != nil || idx < 0 {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				seg.Indices = append(seg.Indices, idx)
				rest = rest[end+1:]
			}
		}
		if name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		seg.Name = name
		out = append(out, seg)
	}
	return out, nil
}

// Lookup resolves a dotted path with [idx] markers against r.
func (r *Record) Lookup(path string) (Value, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return Value{}, false
	}
	return r.LookupSegments(segs)
}

func (r *Record) LookupSegments(segs []PathSegment) (Value, bool) {
	cur := r
	var v Value
	for i, seg := range segs {
		if cur == nil {
			return Value{}, false
		}
		var ok bool
		v, ok = cur.Get(seg.Name)
		if !ok {
			return Value{}, false
		}
		for _, idx := range seg.Indices {
			if v.kind != KindList || idx >= len(v.list) {
				return Value{}, false
			}
			v = v.list[idx]
		}
		if i < len(segs)-1 {
			if v.kind != KindRecord {
				return Value{}, false
			}
			cur = v.rec
		}
	}
	return v, true
}
