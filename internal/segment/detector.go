package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"vast/internal/frames"
	"vast/internal/logging"
)

// FrameComparator scores the similarity of two frames in [0, 1].
type FrameComparator interface {
	Compare(a, b frames.Frame) (float64, error)
	Name() string
}

// ComparisonError reports a failed comparison between two adjacent frames.
type ComparisonError struct {
	Previous int
	Next     int
	Strategy string
	Err      error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("compare frames %d and %d (%s): %v", e.Previous, e.Next, e.Strategy, e.Err)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}

// Detector finds scene boundaries in a frame sequence.
type Detector struct {
	workers int
	logger  *slog.Logger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithWorkers sets the number of concurrent comparisons.
func WithWorkers(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the detector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector constructs a Detector. It holds no per-run state and may be
// reused across runs.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{workers: 1, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect partitions frames into scenes. Frames must be in ascending index
// order, sampled every interval seconds. A boundary is placed at
// i*interval when 1 - similarity(frames[i-1], frames[i]) > threshold.
//
// Zero frames fail with ErrInsufficientFrames. A single frame yields one
// segment spanning [0, interval].
func (d *Detector) Detect(ctx context.Context, seq []frames.Frame, interval float64, cmp FrameComparator, threshold float64) ([]Segment, error) {
	if err := validateInput(seq, interval, cmp, threshold); err != nil {
		return nil, err
	}

	scores, err := d.scorePairs(ctx, seq, cmp)
	if err != nil {
		return nil, err
	}

	segments := fold(scores, len(seq), interval, threshold)
	logging.WithContext(ctx, d.logger).Info("scene boundaries detected",
		logging.String(logging.FieldEventType, "segments_detected"),
		logging.String("strategy", cmp.Name()),
		logging.Int("frame_count", len(seq)),
		logging.Int("segment_count", len(segments)),
		logging.Float64("threshold", threshold),
	)
	return segments, nil
}

func validateInput(seq []frames.Frame, interval float64, cmp FrameComparator, threshold float64) error {
	if len(seq) == 0 {
		return ErrInsufficientFrames
	}
	if interval <= 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidInput, interval)
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("%w: threshold must be strictly between 0 and 1, got %v", ErrInvalidInput, threshold)
	}
	if cmp == nil {
		return fmt.Errorf("%w: comparator is required", ErrInvalidInput)
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Index <= seq[i-1].Index {
			return fmt.Errorf("%w: frame indexes not ascending at position %d (%d after %d)", ErrInvalidInput, i, seq[i].Index, seq[i-1].Index)
		}
	}
	return nil
}

// scorePairs returns scores where scores[i] is the similarity of frames i-1
// and i; scores[0] is unused. When several comparisons fail, the error for
// the earliest pair is returned.
func (d *Detector) scorePairs(ctx context.Context, seq []frames.Frame, cmp FrameComparator) ([]float64, error) {
	n := len(seq)
	scores := make([]float64, n)
	if n < 2 {
		return scores, nil
	}
	errs := make([]error, n)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := d.workers
	if workers > n-1 {
		workers = n - 1
	}
	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				s, err := cmp.Compare(seq[i-1], seq[i])
				if err != nil {
					errs[i] = &ComparisonError{Previous: seq[i-1].Index, Next: seq[i].Index, Strategy: cmp.Name(), Err: err}
					cancel()
					continue
				}
				scores[i] = s
			}
		}()
	}

feed:
	for i := 1; i < n; i++ {
		select {
		case indices <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indices)
	wg.Wait()

	for i := 1; i < n; i++ {
		if errs[i] != nil {
			return nil, errs[i]
		}
	}
	if err := ctx.Err(); err != nil {
		// Cancelled by the caller rather than by a failed comparison.
		return nil, fmt.Errorf("detect: %w", context.Cause(ctx))
	}
	return scores, nil
}

// fold walks the scores left to right and closes a segment at every
// boundary, then appends the trailing segment.
func fold(scores []float64, n int, interval, threshold float64) []Segment {
	var segments []Segment
	start := 0.0
	for i := 1; i < n; i++ {
		if 1-scores[i] > threshold {
			end := float64(i) * interval
			segments = append(segments, newSegment(len(segments), start, end))
			start = end
		}
	}
	return append(segments, newSegment(len(segments), start, float64(n)*interval))
}
