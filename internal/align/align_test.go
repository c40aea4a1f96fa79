package align_test

import (
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"vast/internal/align"
	"vast/internal/segment"
)

func segs(bounds ...float64) []segment.Segment {
	out := make([]segment.Segment, 0, len(bounds)-1)
	for i := 1; i < len(bounds); i++ {
		out = append(out, segment.Segment{ID: i - 1, Start: bounds[i-1], End: bounds[i], Duration: bounds[i] - bounds[i-1]})
	}
	return out
}

func TestAlignDropsStraddlingSpan(t *testing.T) {
	segments := segs(0, 6, 10)
	spans := []align.TimeSpan{
		{Start: 0.5, End: 2, Text: " Hello "},
		{Start: 2, End: 5.5, Text: "world."},
		{Start: 5, End: 7, Text: "straddles"},
		{Start: 6, End: 9, Text: "Second scene"},
	}

	got := align.Align(spans, segments)

	want := []align.Section{
		{SegmentID: 0, Start: 0, End: 6, Text: "Hello world.", SpanCount: 2},
		{SegmentID: 1, Start: 6, End: 10, Text: "Second scene", SpanCount: 1},
	}
	if !reflect.DeepEqual(got.Sections, want) {
		t.Fatalf("sections = %+v, want %+v", got.Sections, want)
	}
	if got.DroppedSpanCount != 1 || got.Dropped[0].Text != "straddles" {
		t.Fatalf("expected the straddling span dropped, got %+v", got)
	}
}

func TestAlignEmptySectionsAndBlankText(t *testing.T) {
	segments := segs(0, 2, 4, 6)
	spans := []align.TimeSpan{
		{Start: 4.1, End: 5, Text: "   "},
		{Start: 5, End: 6, Text: "end"},
	}
	got := align.Align(spans, segments)
	if len(got.Sections) != 3 {
		t.Fatalf("expected a section per segment, got %d", len(got.Sections))
	}
	if got.Sections[0].Text != "" || got.Sections[1].Text != "" || got.Sections[0].SpanCount != 0 {
		t.Fatalf("expected empty leading sections, got %+v", got.Sections)
	}
	if got.Sections[2].Text != "end" || got.Sections[2].SpanCount != 2 {
		t.Fatalf("unexpected last section %+v", got.Sections[2])
	}
}

func TestAlignBoundarySpanGoesToFirstSegment(t *testing.T) {
	got := align.Align([]align.TimeSpan{{Start: 6, End: 6, Text: "instant"}}, segs(0, 6, 10))
	if got.Sections[0].Text != "instant" || got.Sections[1].SpanCount != 0 {
		t.Fatalf("expected point span at a boundary to land in the first segment, got %+v", got.Sections)
	}
}

func TestAlignDropsInvalidAndOutOfRangeSpans(t *testing.T) {
	spans := []align.TimeSpan{
		{Start: 3, End: 1, Text: "backwards"},
		{Start: math.NaN(), End: 1, Text: "nan"},
		{Start: 9, End: 12, Text: "past the end"},
		{Start: -1, End: 0.5, Text: "before start"},
	}
	got := align.Align(spans, segs(0, 5, 10))
	if got.DroppedSpanCount != 4 || len(got.Dropped) != 4 {
		t.Fatalf("expected all spans dropped, got %+v", got)
	}
	if got.AccountedSpans() != len(spans) {
		t.Fatalf("accounted %d of %d spans", got.AccountedSpans(), len(spans))
	}
}

func TestAlignNoSpansOrSegments(t *testing.T) {
	got := align.Align(nil, segs(0, 4))
	if len(got.Sections) != 1 || got.Sections[0].Text != "" || got.DroppedSpanCount != 0 {
		t.Fatalf("unexpected result %+v", got)
	}
	got = align.Align([]align.TimeSpan{{Start: 0, End: 1, Text: "x"}}, nil)
	if len(got.Sections) != 0 || got.DroppedSpanCount != 1 {
		t.Fatalf("expected span dropped without segments, got %+v", got)
	}
}

func TestAlignCoverageProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 200; trial++ {
		bounds := []float64{0}
		for i := 0; i < 1+rng.Intn(8); i++ {
			bounds = append(bounds, bounds[len(bounds)-1]+rng.Float64()*10)
		}
		segments := segs(bounds...)
		total := bounds[len(bounds)-1]

		spans := make([]align.TimeSpan, rng.Intn(30))
		for i := range spans {
			start := rng.Float64()*total*1.2 - 1
			spans[i] = align.TimeSpan{Start: start, End: start + rng.Float64()*4 - 0.5, Text: "w"}
		}

		got := align.Align(spans, segments)
		if len(got.Sections) != len(segments) {
			t.Fatalf("trial %d: %d sections for %d segments", trial, len(got.Sections), len(segments))
		}
		if got.AccountedSpans() != len(spans) {
			t.Fatalf("trial %d: accounted %d of %d spans", trial, got.AccountedSpans(), len(spans))
		}
		for i, sec := range got.Sections {
			if sec.SegmentID != segments[i].ID || sec.Start != segments[i].Start || sec.End != segments[i].End {
				t.Fatalf("trial %d: section %d does not mirror its segment", trial, i)
			}
		}
	}
}

func TestSectionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.json")
	sections := []align.Section{
		{SegmentID: 0, Start: 0, End: 6, Text: "Hello world.", SpanCount: 2},
		{SegmentID: 1, Start: 6, End: 10, Text: ""},
	}
	if err := align.WriteSections(path, sections); err != nil {
		t.Fatalf("WriteSections: %v", err)
	}
	got, err := align.ReadSections(path)
	if err != nil {
		t.Fatalf("ReadSections: %v", err)
	}
	want := []align.Section{
		{SegmentID: 0, Start: 0, End: 6, Text: "Hello world."},
		{SegmentID: 1, Start: 6, End: 10, Text: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}
