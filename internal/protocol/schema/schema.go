// Package schema compiles field descriptions into immutable schema trees.
//
// Ownership boundary:
// - descriptor types for schema documents and inline literals
// - the tree model (arena of nodes addressed by NodeID)
// - build-time validation, reported as a ValidationList
//
// Encoding and decoding against a tree live in package codec.
package schema
