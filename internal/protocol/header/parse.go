package header

import (
	"bytes"
	"fmt"
)

// FieldSummary is one decoded header record.
type FieldSummary struct {
	Index int    `json:"index"`
	Code  Code   `json:"code"`
	Type  string `json:"type"`
	Count int    `json:"count"`
	Name  string `json:"name"`
}

// Summary is the decoded form of a header, for inspection tools.
type Summary struct {
	Schema string         `json:"schema"`
	Fields []FieldSummary `json:"fields"`
}

// Parse decodes header bytes produced by Build.
func Parse(b []byte) (Summary, error) {
	name, off, err := readName(b, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("schema name: %w", err)
	}
	s := Summary{Schema: name}
	for off < len(b) {
		if off+3 > len(b) {
			return s, fmt.Errorf("%w: record at offset %d", ErrTruncated, off)
		}
		f := FieldSummary{Index: int(b[off]), Code: Code(b[off+1]), Count: int(b[off+2])}
		f.Type = f.Code.String()
		if f.Index != len(s.Fields) {
			return s, fmt.Errorf("%w: index %d at offset %d, want %d", ErrMalformed, f.Index, off, len(s.Fields))
		}
		if f.Name, off, err = readName(b, off+3); err != nil {
			return s, fmt.Errorf("field %d: %w", f.Index, err)
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func readName(b []byte, off int) (string, int, error) {
	end := bytes.IndexByte(b[off:], 0)
	if end < 0 {
		return "", off, fmt.Errorf("%w: unterminated name at offset %d", ErrTruncated, off)
	}
	return string(b[off : off+end]), off + end + 1, nil
}
