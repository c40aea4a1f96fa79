package similarity

import (
	"errors"
	"image"
)

var (
	// ErrDimensionMismatch reports frames of different sizes under the
	// structural strategy.
	ErrDimensionMismatch = errors.New("frame dimensions differ")
	// ErrMissingEmbedder reports the embedding strategy without an embedder.
	ErrMissingEmbedder = errors.New("embedding strategy requires an embedder")
	// ErrVectorLength reports embeddings of different lengths.
	ErrVectorLength = errors.New("embedding lengths differ")
	// ErrImageTooSmall reports frames smaller than the SSIM window.
	ErrImageTooSmall = errors.New("frame smaller than comparison window")
)

// Embedder maps an image to a fixed-length vector.
type Embedder interface {
	Embed(img image.Image) ([]float32, error)
}

// Strategy selects how frames are compared. The set of strategies is closed:
// Structural and Embedding are the only implementations.
type Strategy interface {
	strategyName() string
}

// Structural compares frames by SSIM on their grayscale planes.
type Structural struct {
	// AnalysisWidth downsizes both frames to this width before comparison.
	// Zero compares at full resolution.
	AnalysisWidth int
}

func (Structural) strategyName() string { return "structural" }

// Embedding compares frames by the cosine similarity of their embeddings.
type Embedding struct {
	Embedder Embedder
}

func (Embedding) strategyName() string { return "embedding" }

// Name returns the stable identifier of a strategy, as used in configuration
// and error messages.
func Name(s Strategy) string {
	if s == nil {
		return "none"
	}
	return s.strategyName()
}
