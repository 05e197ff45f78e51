// Package view tracks per-field mutation of a view schema and encodes only
// the changed top-level fields.
//
// Change stream records are one id byte followed by the field's normal
// payload. Ids 0..127 carry a payload; id+128 clears a nullable field and
// carries none.
package view
