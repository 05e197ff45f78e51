package codec

import "fmt"

// Diagnostic describes one failed bounds check.
type Diagnostic struct {
	Schema    string `json:"schema"`
	Field     string `json:"field"`
	Offset    int    `json:"offset"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Overflow  int    `json:"overflow"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s.%s: need %d bytes at offset %d, have %d (over by %d)",
		d.Schema, d.Field, d.Required, d.Offset, d.Available, d.Overflow)
}

// BoundsError is the error form of a Diagnostic.
type BoundsError struct {
	Diagnostic
}

func (e *BoundsError) Error() string {
	return "codec: bounds check failed: " + e.Diagnostic.String()
}
