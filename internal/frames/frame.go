package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// ErrNoFrames indicates sampling produced no images.
var ErrNoFrames = errors.New("no frames sampled")

// Frame is one sampled still. Frames are immutable once produced.
type Frame struct {
	// Index is the zero-based position in the sampled sequence.
	Index int
	// Timestamp is Index * interval, in seconds from the start of the video.
	Timestamp float64
	// Image holds the decoded picture when it is already in memory.
	Image image.Image
	// Path locates the encoded picture when Image is nil.
	Path string
}

// Load returns the frame's image, decoding it from Path when needed.
func (f Frame) Load() (image.Image, error) {
	if f.Image != nil {
		return f.Image, nil
	}
	if f.Path == "" {
		return nil, fmt.Errorf("frame %d: no image data", f.Index)
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Index, err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("frame %d: decode %s: %w", f.Index, f.Path, err)
	}
	return img, nil
}

// Sampler yields frames from a media file at a fixed interval.
type Sampler interface {
	Sample(ctx context.Context, mediaPath string, interval float64) ([]Frame, error)
}

// FromImages builds an in-memory frame sequence with timestamps derived from
// interval.
func FromImages(images []image.Image, interval float64) []Frame {
	out := make([]Frame, len(images))
	for i, img := range images {
		out[i] = Frame{Index: i, Timestamp: float64(i) * interval, Image: img}
	}
	return out
}
