package protocol

import "errors"

var (
	ErrUnknownPrimitive = errors.New("protocol: unknown primitive type")
	ErrInvalidPath      = errors.New("protocol: invalid field path")
)
