// Package similarity scores how alike two sampled frames are.
//
// Scores lie in [0, 1]; higher means more similar. Two strategies exist:
// Structural compares grayscale frames with SSIM (7x7 uniform window, sample
// covariance, borders cropped) and Embedding compares vectors from an
// injected Embedder by cosine similarity. Raw values outside [0, 1] are
// clamped.
//
// Similarity scores a single pair. A Comparator scores many pairs within one
// detection run and caches each frame's prepared features so every frame is
// decoded and embedded once.
package similarity
