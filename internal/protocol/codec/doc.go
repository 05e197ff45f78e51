// Package codec packs and unpacks byte buffers against compiled schema
// trees.
//
// Ownership boundary:
// - little-endian traversal for every node variant
// - bounds checks and diagnostics on decode
// - packed size computation from live values
//
// Writes are not bounds checked: size the buffer with PackedSize or use
// Marshal.
package codec
