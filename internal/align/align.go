package align

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"vast/internal/fileutil"
	"vast/internal/segment"
)

// TimeSpan is a transcript entry such as one subtitle cue.
type TimeSpan struct {
	Start float64
	End   float64
	Text  string
}

// Section is the transcript text attached to one segment.
type Section struct {
	SegmentID int     `json:"segment_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	// SpanCount is the number of spans assigned to the segment, including
	// spans whose text was blank.
	SpanCount int `json:"-"`
}

// Result is the outcome of an alignment.
type Result struct {
	Sections []Section
	// DroppedSpanCount is the number of spans no segment fully contains.
	DroppedSpanCount int
	Dropped          []TimeSpan
}

// Align assigns spans to segments. It returns one Section per segment in
// segment order and never fails; spans that straddle a boundary, fall
// outside every segment, or have start > end are reported as dropped.
func Align(spans []TimeSpan, segments []segment.Segment) Result {
	result := Result{Sections: make([]Section, len(segments))}
	texts := make([][]string, len(segments))
	for i, s := range segments {
		result.Sections[i] = Section{SegmentID: s.ID, Start: s.Start, End: s.End}
	}

	for _, span := range spans {
		idx := owner(span, segments)
		if idx < 0 {
			result.DroppedSpanCount++
			result.Dropped = append(result.Dropped, span)
			continue
		}
		result.Sections[idx].SpanCount++
		if text := strings.TrimSpace(span.Text); text != "" {
			texts[idx] = append(texts[idx], text)
		}
	}
	for i := range result.Sections {
		result.Sections[i].Text = strings.Join(texts[i], " ")
	}
	return result
}

// owner returns the index of the first segment containing span, or -1.
func owner(span TimeSpan, segments []segment.Segment) int {
	if math.IsNaN(span.Start) || math.IsNaN(span.End) || span.Start > span.End {
		return -1
	}
	for i, s := range segments {
		if span.Start >= s.Start && span.End <= s.End {
			return i
		}
	}
	return -1
}

// AccountedSpans returns the number of spans either assigned or dropped. It
// always equals the number of spans passed to Align.
func (r Result) AccountedSpans() int {
	total := r.DroppedSpanCount
	for _, s := range r.Sections {
		total += s.SpanCount
	}
	return total
}

// WriteSections persists sections atomically as JSON.
func WriteSections(path string, sections []Section) error {
	if sections == nil {
		sections = []Section{}
	}
	if err := fileutil.WriteJSONAtomic(path, sections); err != nil {
		return fmt.Errorf("write sections: %w", err)
	}
	return nil
}

// ReadSections loads sections written by WriteSections. SpanCount is not
// persisted and reads back as zero.
func ReadSections(path string) ([]Section, error) {
	var sections []Section
	if err := fileutil.ReadJSON(path, &sections); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read sections: %w", err)
	}
	return sections, nil
}
