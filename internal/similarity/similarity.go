package similarity

import (
	"fmt"
	"image"

	"vast/internal/frames"
)

// Similarity scores two frames under the given strategy. It is stateless;
// use a Comparator to score a sequence of frames.
func Similarity(a, b frames.Frame, s Strategy) (float64, error) {
	if _, err := NewComparator(s); err != nil {
		return 0, err
	}
	fa, err := prepare(a, s)
	if err != nil {
		return 0, err
	}
	fb, err := prepare(b, s)
	if err != nil {
		return 0, err
	}
	return score(fa, fb, s)
}

// features are the prepared inputs of a frame under one strategy.
type features struct {
	bounds image.Rectangle
	gray   grayPlane
	vector []float32
}

func prepare(f frames.Frame, s Strategy) (features, error) {
	img, err := f.Load()
	if err != nil {
		return features{}, err
	}
	switch st := s.(type) {
	case Structural:
		plane, err := prepareGray(img, st.AnalysisWidth)
		if err != nil {
			return features{}, fmt.Errorf("frame %d: %w", f.Index, err)
		}
		return features{bounds: img.Bounds(), gray: plane}, nil
	case Embedding:
		vec, err := st.Embedder.Embed(img)
		if err != nil {
			return features{}, fmt.Errorf("frame %d: embed: %w", f.Index, err)
		}
		return features{vector: vec}, nil
	default:
		return features{}, fmt.Errorf("unsupported strategy %T", s)
	}
}

func score(a, b features, s Strategy) (float64, error) {
	switch s.(type) {
	case Structural:
		if a.bounds.Dx() != b.bounds.Dx() || a.bounds.Dy() != b.bounds.Dy() {
			return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, a.bounds.Dx(), a.bounds.Dy(), b.bounds.Dx(), b.bounds.Dy())
		}
		return clamp01(ssim(a.gray, b.gray)), nil
	case Embedding:
		v, err := cosine(a.vector, b.vector)
		if err != nil {
			return 0, err
		}
		return clamp01(v), nil
	default:
		return 0, fmt.Errorf("unsupported strategy %T", s)
	}
}
