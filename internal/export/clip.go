package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vast/internal/segment"
)

const (
	// RecordName is the metadata record written after a successful export.
	RecordName   = "scene_segments.json"
	planName     = ".export_plan.json"
	lockName     = ".export.lock"
	clipPrefix   = "scene_"
	partialInfix = ".partial"
	defaultExt   = ".mp4"
)

var (
	// ErrExtractionFailed marks a clip the extractor could not produce.
	ErrExtractionFailed = errors.New("clip extraction failed")
	// ErrExportLocked indicates another exporter holds the output directory.
	ErrExportLocked = errors.New("output directory locked by another export")
	// ErrNoSegments indicates an export was requested for an empty segment list.
	ErrNoSegments = errors.New("no segments to export")
)

// Clip describes one exported clip.
type Clip struct {
	SegmentID  int     `json:"segment_id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Duration   float64 `json:"duration"`
	SourcePath string  `json:"source_path"`
	OutputFile string  `json:"output_file"`
}

// SegmentFailure pairs a segment with the reason its clip was not produced.
type SegmentFailure struct {
	SegmentID int
	Err       error
}

// ExportError aggregates every failed segment of an export.
type ExportError struct {
	Failures []SegmentFailure
}

func (e *ExportError) Error() string {
	ids := e.SegmentIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	msg := fmt.Sprintf("export failed for %d segment(s) [%s]", len(ids), strings.Join(parts, ", "))
	if len(e.Failures) > 0 {
		msg += ": " + e.Failures[0].Err.Error()
	}
	return msg
}

// Unwrap exposes every underlying failure to errors.Is and errors.As.
func (e *ExportError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// SegmentIDs returns the failed segment ids in ascending order.
func (e *ExportError) SegmentIDs() []int {
	ids := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.SegmentID
	}
	sort.Ints(ids)
	return ids
}

// ClipName returns the file name of the clip for a segment id.
func ClipName(id int, ext string) string {
	return fmt.Sprintf("%s%03d%s", clipPrefix, id, ext)
}

func partialName(id int, ext string) string {
	return fmt.Sprintf("%s%03d%s%s", clipPrefix, id, partialInfix, ext)
}

func clipExt(source string) string {
	ext := filepath.Ext(source)
	if ext == "" {
		return defaultExt
	}
	return ext
}

func planClips(source string, segments []segment.Segment, outputDir string) []Clip {
	ext := clipExt(source)
	clips := make([]Clip, len(segments))
	for i, s := range segments {
		clips[i] = Clip{
			SegmentID:  s.ID,
			Start:      s.Start,
			End:        s.End,
			Duration:   s.Duration,
			SourcePath: source,
			OutputFile: filepath.Join(outputDir, ClipName(s.ID, ext)),
		}
	}
	return clips
}
