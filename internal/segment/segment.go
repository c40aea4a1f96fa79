package segment

import (
	"errors"
	"fmt"
	"os"

	"vast/internal/fileutil"
)

var (
	// ErrInsufficientFrames indicates detection was asked to run on no frames.
	ErrInsufficientFrames = errors.New("insufficient frames")
	// ErrInvalidInput indicates an unusable interval, threshold, or frame order.
	ErrInvalidInput = errors.New("invalid detection input")
)

// Segment is a contiguous time range of the source video.
type Segment struct {
	// ID is the zero-based position in the final list.
	ID       int     `json:"id"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

func newSegment(id int, start, end float64) Segment {
	return Segment{ID: id, Start: start, End: end, Duration: end - start}
}

// Validate checks the coverage invariant: ids match positions, the first
// segment starts at zero, each segment starts where the previous ended, and
// the last ends at total.
func Validate(segments []Segment, total float64) error {
	if len(segments) == 0 {
		return errors.New("no segments")
	}
	if segments[0].Start != 0 {
		return fmt.Errorf("segment 0 starts at %v, want 0", segments[0].Start)
	}
	for i, s := range segments {
		if s.ID != i {
			return fmt.Errorf("segment at position %d has id %d", i, s.ID)
		}
		if s.End < s.Start {
			return fmt.Errorf("segment %d ends before it starts", i)
		}
		if s.Duration != s.End-s.Start {
			return fmt.Errorf("segment %d duration %v does not match bounds", i, s.Duration)
		}
		if i > 0 && s.Start != segments[i-1].End {
			return fmt.Errorf("segment %d starts at %v, previous ended at %v", i, s.Start, segments[i-1].End)
		}
	}
	if last := segments[len(segments)-1]; last.End != total {
		return fmt.Errorf("last segment ends at %v, want %v", last.End, total)
	}
	return nil
}

// WriteSegments persists the segment list atomically as JSON.
func WriteSegments(path string, segments []Segment) error {
	if segments == nil {
		segments = []Segment{}
	}
	if err := fileutil.WriteJSONAtomic(path, segments); err != nil {
		return fmt.Errorf("write segments: %w", err)
	}
	return nil
}

// ReadSegments loads a segment list written by WriteSegments.
func ReadSegments(path string) ([]Segment, error) {
	var segments []Segment
	if err := fileutil.ReadJSON(path, &segments); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read segments: %w", err)
	}
	return segments, nil
}
