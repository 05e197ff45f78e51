package header

import "errors"

var (
	ErrNotView   = errors.New("header: schema is not a view")
	ErrTruncated = errors.New("header: truncated header")
	ErrMalformed = errors.New("header: malformed header")
)
