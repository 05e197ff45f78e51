// Package inspect serves a read-only HTTP view of a compiled schema
// catalog: tree outlines, header bytes and fingerprints, and decoding of
// posted packed payloads or change streams.
package inspect
