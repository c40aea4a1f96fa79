package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vast/internal/align"
	"vast/internal/segment"
)

const alignSRT = `1
00:00:01,000 --> 00:00:02,500
Hello there

2
00:00:05,000 --> 00:00:07,000
crossing the cut

3
00:00:07,000 --> 00:00:09,000
World
`

func writeAlignInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	segPath := filepath.Join(dir, "segments.json")
	segs := []segment.Segment{
		{ID: 0, Start: 0, End: 6, Duration: 6},
		{ID: 1, Start: 6, End: 10, Duration: 4},
	}
	if err := segment.WriteSegments(segPath, segs); err != nil {
		t.Fatalf("write segments: %v", err)
	}
	srtPath := filepath.Join(dir, "talk.srt")
	if err := os.WriteFile(srtPath, []byte(alignSRT), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	return segPath, srtPath
}

func TestAlignCommandWritesSections(t *testing.T) {
	segPath, srtPath := writeAlignInputs(t)
	output := filepath.Join(filepath.Dir(segPath), "sections.json")

	out, _, err := runCLI(t, []string{"align", segPath, srtPath, "--output", output}, "")
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	requireContains(t, out, "Hello there")
	requireContains(t, out, "1 of 3")

	sections, err := align.ReadSections(output)
	if err != nil {
		t.Fatalf("read sections: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Text != "Hello there" || sections[1].Text != "World" {
		t.Fatalf("unexpected section text: %+v", sections)
	}
}

func TestAlignCommandJSON(t *testing.T) {
	segPath, srtPath := writeAlignInputs(t)

	out, _, err := runCLI(t, []string{"align", segPath, srtPath, "--json"}, "")
	if err != nil {
		t.Fatalf("align --json: %v", err)
	}
	var sections []align.Section
	if err := json.Unmarshal([]byte(out), &sections); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(sections) != 2 || sections[1].SegmentID != 1 {
		t.Fatalf("unexpected sections: %+v", sections)
	}
}

func TestAlignCommandRejectsUnknownTranscript(t *testing.T) {
	segPath, _ := writeAlignInputs(t)
	other := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(other, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := runCLI(t, []string{"align", segPath, other}, ""); err == nil {
		t.Fatal("expected unsupported transcript format error")
	}
}
