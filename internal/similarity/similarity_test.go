package similarity

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"vast/internal/frames"
	"vast/internal/testsupport"
)

func frame(index int, img image.Image) frames.Frame {
	return frames.Frame{Index: index, Timestamp: float64(index), Image: img}
}

func TestStructuralIdenticalFramesScoreOne(t *testing.T) {
	img := testsupport.StripedImage(32, 24, 3, color.Black, color.White)
	got, err := Similarity(frame(0, img), frame(1, img), Structural{})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected 1 for identical frames, got %v", got)
	}
}

func TestStructuralOppositeFramesScoreNearZero(t *testing.T) {
	black := testsupport.SolidImage(32, 24, color.Black)
	white := testsupport.SolidImage(32, 24, color.White)
	got, err := Similarity(frame(0, black), frame(1, white), Structural{})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got > 0.01 {
		t.Fatalf("expected near-zero similarity, got %v", got)
	}
	if got < 0 {
		t.Fatalf("score escaped [0,1]: %v", got)
	}
}

func TestStructuralInvertedStripesClampToZero(t *testing.T) {
	a := testsupport.StripedImage(32, 32, 2, color.Black, color.White)
	b := testsupport.StripedImage(32, 32, 2, color.White, color.Black)
	got, err := Similarity(frame(0, a), frame(1, b), Structural{})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected negative SSIM to clamp to 0, got %v", got)
	}
}

func TestStructuralDimensionMismatch(t *testing.T) {
	a := testsupport.SolidImage(32, 24, color.Black)
	b := testsupport.SolidImage(64, 48, color.Black)
	_, err := Similarity(frame(0, a), frame(1, b), Structural{AnalysisWidth: 16})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch even with downscaling, got %v", err)
	}
}

func TestStructuralRejectsTinyFrames(t *testing.T) {
	a := testsupport.SolidImage(4, 4, color.Black)
	_, err := Similarity(frame(0, a), frame(1, a), Structural{})
	if !errors.Is(err, ErrImageTooSmall) {
		t.Fatalf("expected ErrImageTooSmall, got %v", err)
	}
}

func TestStructuralAnalysisWidthKeepsOrdering(t *testing.T) {
	base := testsupport.StripedImage(128, 96, 8, color.Black, color.White)
	near := testsupport.StripedImage(128, 96, 8, color.Gray{Y: 20}, color.White)
	far := testsupport.SolidImage(128, 96, color.Gray{Y: 128})

	s := Structural{AnalysisWidth: 32}
	nearScore, err := Similarity(frame(0, base), frame(1, near), s)
	if err != nil {
		t.Fatalf("Similarity near: %v", err)
	}
	farScore, err := Similarity(frame(0, base), frame(1, far), s)
	if err != nil {
		t.Fatalf("Similarity far: %v", err)
	}
	if nearScore <= farScore {
		t.Fatalf("expected near (%v) > far (%v)", nearScore, farScore)
	}
}

func TestToGrayUsesBT601Weights(t *testing.T) {
	img := testsupport.SolidImage(1, 1, color.RGBA{R: 255, A: 255})
	plane := toGray(img)
	if math.Abs(plane.pix[0]-0.299*255) > 1e-9 {
		t.Fatalf("unexpected red luminance %v", plane.pix[0])
	}
}

type stubEmbedder struct {
	vectors map[image.Image][]float32
	calls   atomic.Int32
	err     error
}

func (s *stubEmbedder) Embed(img image.Image) ([]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[img], nil
}

func TestEmbeddingCosine(t *testing.T) {
	a := testsupport.SolidImage(2, 2, color.Black)
	b := testsupport.SolidImage(2, 2, color.White)
	c := testsupport.SolidImage(2, 2, color.Gray{Y: 9})
	emb := &stubEmbedder{vectors: map[image.Image][]float32{
		a: {1, 0},
		b: {1, 1},
		c: {-1, 0},
	}}
	s := Embedding{Embedder: emb}

	got, err := Similarity(frame(0, a), frame(1, b), s)
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if math.Abs(got-1/math.Sqrt2) > 1e-9 {
		t.Fatalf("expected cos 45deg, got %v", got)
	}

	got, err = Similarity(frame(0, a), frame(1, c), s)
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected opposite vectors to clamp to 0, got %v", got)
	}
}

func TestEmbeddingErrors(t *testing.T) {
	a := testsupport.SolidImage(2, 2, color.Black)
	b := testsupport.SolidImage(2, 2, color.White)

	if _, err := Similarity(frame(0, a), frame(1, b), Embedding{}); !errors.Is(err, ErrMissingEmbedder) {
		t.Fatalf("expected ErrMissingEmbedder, got %v", err)
	}

	emb := &stubEmbedder{vectors: map[image.Image][]float32{a: {1, 0}, b: {1, 0, 0}}}
	if _, err := Similarity(frame(0, a), frame(1, b), Embedding{Embedder: emb}); !errors.Is(err, ErrVectorLength) {
		t.Fatalf("expected ErrVectorLength, got %v", err)
	}

	boom := errors.New("model exploded")
	failing := &stubEmbedder{err: boom}
	if _, err := Similarity(frame(0, a), frame(1, b), Embedding{Embedder: failing}); !errors.Is(err, boom) {
		t.Fatalf("expected embedder error, got %v", err)
	}
}

func TestComparatorEmbedsEachFrameOnce(t *testing.T) {
	images := make([]image.Image, 6)
	vectors := make(map[image.Image][]float32)
	for i := range images {
		img := testsupport.SolidImage(2, 2, color.Gray{Y: uint8(i)})
		images[i] = img
		vectors[img] = []float32{1, float32(i)}
	}
	emb := &stubEmbedder{vectors: vectors}
	cmp, err := NewComparator(Embedding{Embedder: emb})
	if err != nil {
		t.Fatalf("NewComparator: %v", err)
	}
	if cmp.Name() != "embedding" {
		t.Fatalf("unexpected name %q", cmp.Name())
	}

	seq := frames.FromImages(images, 1)
	var wg sync.WaitGroup
	for i := 1; i < len(seq); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := cmp.Compare(seq[i-1], seq[i]); err != nil {
				t.Errorf("Compare(%d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := emb.calls.Load(); got != int32(len(images)) {
		t.Fatalf("expected %d embed calls, got %d", len(images), got)
	}
	// Interior frames are released after both neighbours used them.
	if got := cmp.cached(); got != 2 {
		t.Fatalf("expected only the end frames to stay cached, got %d", got)
	}
}

func TestNewComparatorValidates(t *testing.T) {
	if _, err := NewComparator(nil); err == nil {
		t.Fatal("expected error for nil strategy")
	}
	if _, err := NewComparator(Embedding{}); !errors.Is(err, ErrMissingEmbedder) {
		t.Fatalf("expected ErrMissingEmbedder, got %v", err)
	}
	if _, err := NewComparator(Structural{AnalysisWidth: -1}); err == nil {
		t.Fatal("expected error for negative analysis width")
	}
	if Name(Structural{}) != "structural" || Name(nil) != "none" {
		t.Fatal("unexpected strategy names")
	}
}
