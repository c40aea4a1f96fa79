package export_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vast/internal/export"
	"vast/internal/segment"
	"vast/internal/testsupport"
)

// fakeExtractor writes a small file per call and can be told to fail for
// particular start times.
type fakeExtractor struct {
	calls  atomic.Int32
	mu     sync.Mutex
	starts []float64
	failAt map[float64]error
	block  chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, _ string, start, duration float64, dest string) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.starts = append(f.starts, start)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err, ok := f.failAt[start]; ok {
		// Leave a partial behind to prove cleanup.
		_ = os.WriteFile(dest, []byte("partial"), 0o644)
		return err
	}
	return os.WriteFile(dest, []byte(fmt.Sprintf("clip %.3f+%.3f", start, duration)), 0o644)
}

func waitForCalls(t *testing.T, f *fakeExtractor, n int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("extractor never reached %d calls", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func threeSegments() []segment.Segment {
	return []segment.Segment{
		{ID: 0, Start: 0, End: 4, Duration: 4},
		{ID: 1, Start: 4, End: 10, Duration: 6},
		{ID: 2, Start: 10, End: 12, Duration: 2},
	}
}

func sourceFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	testsupport.WriteFile(t, path, 64)
	return path
}

func TestExportWritesClipsAndRecord(t *testing.T) {
	source := sourceFile(t, "lecture.mkv")
	out := filepath.Join(t.TempDir(), "clips")
	fake := &fakeExtractor{}
	var created atomic.Int32
	exp := export.NewExporter(fake, export.WithWorkers(2), export.WithObserver(func(result string) {
		if result == export.ResultCreated {
			created.Add(1)
		}
	}))

	clips, err := exp.Export(context.Background(), source, threeSegments(), out)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	for i, c := range clips {
		if c.SegmentID != i {
			t.Fatalf("clip %d has segment id %d", i, c.SegmentID)
		}
		wantName := fmt.Sprintf("scene_%03d.mkv", i)
		if filepath.Base(c.OutputFile) != wantName {
			t.Fatalf("clip %d named %q, want %q", i, filepath.Base(c.OutputFile), wantName)
		}
		if c.SourcePath != source {
			t.Fatalf("clip %d source %q", i, c.SourcePath)
		}
		if _, err := os.Stat(c.OutputFile); err != nil {
			t.Fatalf("clip %d missing: %v", i, err)
		}
	}
	if clips[1].Start != 4 || clips[1].End != 10 || clips[1].Duration != 6 {
		t.Fatalf("unexpected clip bounds %+v", clips[1])
	}
	if created.Load() != 3 {
		t.Fatalf("expected 3 created results, got %d", created.Load())
	}

	record, err := export.ReadRecord(filepath.Join(out, export.RecordName))
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !reflect.DeepEqual(record, clips) {
		t.Fatalf("record %+v does not match clips %+v", record, clips)
	}

	raw, err := os.ReadFile(filepath.Join(out, export.RecordName))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"segment_id"`, `"start"`, `"end"`, `"duration"`, `"source_path"`, `"output_file"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("record missing key %s: %s", key, raw)
		}
	}
}

func TestExportIsIdempotent(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	fake := &fakeExtractor{}
	var mu sync.Mutex
	results := map[string]int{}
	exp := export.NewExporter(fake, export.WithWorkers(3), export.WithObserver(func(result string) {
		mu.Lock()
		results[result]++
		mu.Unlock()
	}))

	first, err := exp.Export(context.Background(), source, threeSegments(), out)
	if err != nil {
		t.Fatalf("first Export: %v", err)
	}
	callsAfterFirst := fake.calls.Load()

	second, err := exp.Export(context.Background(), source, threeSegments(), out)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if fake.calls.Load() != callsAfterFirst {
		t.Fatalf("expected no extraction on rerun, calls went %d -> %d", callsAfterFirst, fake.calls.Load())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rerun returned different list:\n%+v\n%+v", first, second)
	}
	// Every rerun reports its clips again, as reused.
	if _, err := exp.Export(context.Background(), source, threeSegments(), out); err != nil {
		t.Fatalf("third Export: %v", err)
	}
	want := map[string]int{export.ResultCreated: 3, export.ResultReused: 6}
	if !reflect.DeepEqual(results, want) {
		t.Fatalf("observer results %v, want %v", results, want)
	}
}

func TestExportResumesFromRecordWithoutPlanFile(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	fake := &fakeExtractor{}
	exp := export.NewExporter(fake, export.WithWorkers(2))

	if _, err := exp.Export(context.Background(), source, threeSegments(), out); err != nil {
		t.Fatalf("first Export: %v", err)
	}
	keptBefore, err := os.ReadFile(filepath.Join(out, "scene_000.mp4"))
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if err := os.Remove(filepath.Join(out, ".export_plan.json")); err != nil {
		t.Fatalf("remove plan: %v", err)
	}
	if err := os.Remove(filepath.Join(out, "scene_001.mp4")); err != nil {
		t.Fatalf("remove clip: %v", err)
	}
	// Mark a surviving clip so a re-extraction would be visible.
	marked := filepath.Join(out, "scene_002.mp4")
	if err := os.WriteFile(marked, []byte("kept"), 0o644); err != nil {
		t.Fatalf("mark clip: %v", err)
	}

	before := fake.calls.Load()
	clips, err := exp.Export(context.Background(), source, threeSegments(), out)
	if err != nil {
		t.Fatalf("resume Export: %v", err)
	}
	if got := fake.calls.Load() - before; got != 1 {
		t.Fatalf("expected 1 extraction on resume, got %d", got)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	if data, _ := os.ReadFile(marked); string(data) != "kept" {
		t.Fatalf("expected existing clip untouched, got %q", data)
	}
	if data, _ := os.ReadFile(filepath.Join(out, "scene_000.mp4")); string(data) != string(keptBefore) {
		t.Fatalf("expected scene_000 untouched")
	}
	if _, err := os.Stat(filepath.Join(out, ".export_plan.json")); err != nil {
		t.Fatalf("expected plan file rewritten: %v", err)
	}
}

func TestExportAggregatesFailuresAndRetriesMissing(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	fake := &fakeExtractor{failAt: map[float64]error{
		4:  errors.New("moov atom not found"),
		10: errors.New("invalid argument"),
	}}
	exp := export.NewExporter(fake, export.WithWorkers(2))

	clips, err := exp.Export(context.Background(), source, threeSegments(), out)
	if clips != nil {
		t.Fatalf("expected no clips on failure, got %+v", clips)
	}
	var exportErr *export.ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("expected ExportError, got %v", err)
	}
	if got := exportErr.SegmentIDs(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("expected failed segments [1 2], got %v", got)
	}
	if !errors.Is(err, export.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "moov atom not found") {
		t.Fatalf("expected tool diagnostic in error, got %q", err.Error())
	}
	if fake.calls.Load() != 3 {
		t.Fatalf("expected every segment attempted, got %d calls", fake.calls.Load())
	}
	if _, err := os.Stat(filepath.Join(out, export.RecordName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("record must not be written on failure: %v", err)
	}
	entries, _ := os.ReadDir(out)
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".partial") {
			t.Fatalf("partial file left behind: %s", entry.Name())
		}
	}

	// A retry with a healthy extractor only produces the missing clips.
	fake.failAt = nil
	before := fake.calls.Load()
	clips, err = exp.Export(context.Background(), source, threeSegments(), out)
	if err != nil {
		t.Fatalf("retry Export: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips after retry, got %d", len(clips))
	}
	if got := fake.calls.Load() - before; got != 2 {
		t.Fatalf("expected 2 extractions on retry, got %d", got)
	}
}

func TestExportReplacesClipsFromDifferentPlan(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	fake := &fakeExtractor{}
	exp := export.NewExporter(fake)

	if _, err := exp.Export(context.Background(), source, threeSegments(), out); err != nil {
		t.Fatalf("first Export: %v", err)
	}
	fewer := []segment.Segment{
		{ID: 0, Start: 0, End: 10, Duration: 10},
		{ID: 1, Start: 10, End: 12, Duration: 2},
	}
	before := fake.calls.Load()
	clips, err := exp.Export(context.Background(), source, fewer, out)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if got := fake.calls.Load() - before; got != 2 {
		t.Fatalf("expected both clips re-extracted for the new plan, got %d", got)
	}
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(clips))
	}
	if _, err := os.Stat(filepath.Join(out, "scene_002.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale scene_002 removed, got %v", err)
	}
}

func TestExportRemovesStalePartials(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	stale := filepath.Join(out, "scene_000.partial.mp4")
	if err := os.WriteFile(stale, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := &fakeExtractor{}
	if _, err := export.NewExporter(fake).Export(context.Background(), source, threeSegments(), out); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale partial removed, got %v", err)
	}
}

func TestExportDefaultsExtension(t *testing.T) {
	source := sourceFile(t, "recording")
	out := t.TempDir()
	clips, err := export.NewExporter(&fakeExtractor{}).Export(context.Background(), source, threeSegments()[:1], out)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Base(clips[0].OutputFile) != "scene_000.mp4" {
		t.Fatalf("expected .mp4 fallback, got %q", clips[0].OutputFile)
	}
}

func TestExportLockExcludesSecondExporter(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	blocking := &fakeExtractor{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := export.NewExporter(blocking).Export(context.Background(), source, threeSegments(), out)
		done <- err
	}()
	waitForCalls(t, blocking, 1)

	_, err := export.NewExporter(&fakeExtractor{}).Export(context.Background(), source, threeSegments(), out)
	if !errors.Is(err, export.ErrExportLocked) {
		t.Fatalf("expected ErrExportLocked, got %v", err)
	}

	close(blocking.block)
	if err := <-done; err != nil {
		t.Fatalf("first Export: %v", err)
	}
}

func TestExportCancellationStopsNewExtractions(t *testing.T) {
	source := sourceFile(t, "talk.mp4")
	out := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeExtractor{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := export.NewExporter(fake, export.WithWorkers(1)).Export(ctx, source, threeSegments(), out)
		done <- err
	}()
	waitForCalls(t, fake, 1)
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := fake.calls.Load(); got != 1 {
		t.Fatalf("expected a single extraction attempt, got %d", got)
	}
}

func TestExportValidatesInput(t *testing.T) {
	out := t.TempDir()
	if _, err := export.NewExporter(&fakeExtractor{}).Export(context.Background(), sourceFile(t, "a.mp4"), nil, out); !errors.Is(err, export.ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
	if _, err := export.NewExporter(&fakeExtractor{}).Export(context.Background(), filepath.Join(out, "missing.mp4"), threeSegments(), out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestFFmpegExtractorArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	x := export.NewFFmpegExtractor("")
	x.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	})
	if err := x.Extract(context.Background(), "/in/talk.mp4", 4, 6.5, "/out/scene_001.partial.mp4"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if gotName != "ffmpeg" {
		t.Fatalf("unexpected binary %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-ss 4.000", "-t 6.500", "-i /in/talk.mp4", "-c copy"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if gotArgs[len(gotArgs)-1] != "/out/scene_001.partial.mp4" {
		t.Fatalf("destination must be last, got %q", gotArgs[len(gotArgs)-1])
	}

	x.WithCommandRunner(func(context.Context, string, ...string) error { return errors.New("exit status 1: codec not supported") })
	err := x.Extract(context.Background(), "/in/talk.mp4", 0, 1, "/out/x.mp4")
	if !errors.Is(err, export.ErrExtractionFailed) || !strings.Contains(err.Error(), "codec not supported") {
		t.Fatalf("expected ErrExtractionFailed with diagnostic, got %v", err)
	}
}
