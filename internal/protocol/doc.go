// Package protocol owns the value model and primitive wire helpers shared by
// the schema, codec, view and header packages.
//
// Ownership boundary:
// - primitive type table and little-endian read/write
// - live field values (Value, Record)
// - shared sentinel errors
package protocol
