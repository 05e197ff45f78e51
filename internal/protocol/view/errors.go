package view

import "errors"

var (
	ErrNotView         = errors.New("view: schema is not a view")
	ErrTooManySlots    = errors.New("view: too many top-level fields")
	ErrUnknownField    = errors.New("view: unknown field")
	ErrUnknownChangeID = errors.New("view: change id out of range")
	ErrNotNullable     = errors.New("view: field is not nullable")
)
