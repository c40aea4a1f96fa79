// Package segment partitions a sampled frame sequence into contiguous scenes.
//
// Detect scores every adjacent frame pair, then folds left over the scores:
// a boundary is placed after frame i-1 whenever the dissimilarity
// (1 - similarity) strictly exceeds the threshold. Segments tile
// [0, n*interval] with no gaps or overlaps, and a trailing segment is always
// emitted, even when it has zero length.
package segment
