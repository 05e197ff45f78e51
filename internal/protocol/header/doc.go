// Package header renders the static schema description consumed by
// clients that do not run the codec: the schema name followed by one
// record per top-level field carrying its index, a type code and an
// element count. Only a fixed set of scalar types and fixed-length arrays
// of them can be described.
package header
