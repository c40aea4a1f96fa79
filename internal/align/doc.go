// Package align attaches time-stamped transcript spans to scenes.
//
// Align is a pure partition: every span lands in the first segment that
// fully contains it, or is dropped and counted when it straddles a boundary
// or carries invalid times. Section text is the trimmed span texts joined by
// single spaces in input order.
package align
