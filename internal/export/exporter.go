package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"vast/internal/fileutil"
	"vast/internal/logging"
	"vast/internal/segment"
)

// Result labels reported to the observer for each clip.
const (
	ResultCreated = "created"
	ResultReused  = "reused"
	ResultFailed  = "failed"
)

// plan is the intent of the export currently occupying a directory.
type plan struct {
	Source   string            `json:"source"`
	Segments []segment.Segment `json:"segments"`
}

// Exporter writes one clip per segment.
type Exporter struct {
	extractor Extractor
	workers   int
	logger    *slog.Logger
	observe   func(result string)
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithWorkers sets the number of concurrent extractions.
func WithWorkers(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the exporter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a callback receiving one result label per clip.
// Clips already on disk are reported as ResultReused on every call, so a
// counter fed by the observer grows with each rerun of the same export.
func WithObserver(fn func(result string)) Option {
	return func(e *Exporter) {
		e.observe = fn
	}
}

// NewExporter constructs an Exporter around an extractor.
func NewExporter(extractor Extractor, opts ...Option) *Exporter {
	e := &Exporter{extractor: extractor, workers: 1, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes scene_NNN clips for every segment into outputDir and returns
// them in segment order. Every segment is attempted; when any fail the
// returned error is an *ExportError naming all of them and no clip list is
// returned.
func (e *Exporter) Export(ctx context.Context, source string, segments []segment.Segment, outputDir string) ([]Clip, error) {
	if e.extractor == nil {
		return nil, errors.New("export: extractor is required")
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("export: source: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure output dir: %w", err)
	}

	lock := flock.New(filepath.Join(outputDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("export: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrExportLocked, outputDir)
	}
	defer func() { _ = lock.Unlock() }()

	logger := logging.WithContext(ctx, e.logger)
	clips := planClips(source, segments, outputDir)
	recordPath := filepath.Join(outputDir, RecordName)

	if existing, ok := readRecord(recordPath); ok && slices.Equal(existing, clips) && allExist(clips) {
		logger.Info("clips already exported",
			logging.String(logging.FieldEventType, "export_reused"),
			logging.Int("clip_count", len(clips)),
		)
		for range clips {
			e.report(ResultReused)
		}
		return clips, nil
	}

	if err := e.prepareDir(outputDir, source, segments, clips, recordPath, logger); err != nil {
		return nil, err
	}

	pending := make([]int, 0, len(clips))
	for i, c := range clips {
		if fileExists(c.OutputFile) {
			e.report(ResultReused)
			continue
		}
		pending = append(pending, i)
	}

	failures := e.extractAll(ctx, clips, pending, outputDir)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if len(failures) > 0 {
		exportErr := &ExportError{Failures: failures}
		logger.Error("clip export failed",
			logging.Error(exportErr),
			logging.String(logging.FieldEventType, "export_failed"),
			logging.Any("failed_segments", exportErr.SegmentIDs()),
			logging.String(logging.FieldErrorHint, "inspect the ffmpeg diagnostic; rerun to retry only the missing clips"),
		)
		return nil, exportErr
	}

	if err := fileutil.WriteJSONAtomic(recordPath, clips); err != nil {
		return nil, fmt.Errorf("export: write record: %w", err)
	}
	logger.Info("clips exported",
		logging.String(logging.FieldEventType, "export_completed"),
		logging.Int("clip_count", len(clips)),
		logging.Int("extracted", len(pending)),
		logging.String("record", recordPath),
	)
	return clips, nil
}

// prepareDir removes leftovers that cannot belong to the current export:
// partial files always, and clips of a different plan. A matching plan file
// or a matching clip record both identify the current plan.
func (e *Exporter) prepareDir(outputDir, source string, segments []segment.Segment, clips []Clip, recordPath string, logger *slog.Logger) error {
	current := plan{Source: source, Segments: segments}
	planPath := filepath.Join(outputDir, planName)

	var previous plan
	samePlan := false
	if err := fileutil.ReadJSON(planPath, &previous); err == nil {
		samePlan = previous.Source == current.Source && slices.Equal(previous.Segments, current.Segments)
	}
	if !samePlan {
		if existing, ok := readRecord(recordPath); ok && slices.Equal(existing, clips) {
			samePlan = true
		}
	}

	keep := make(map[string]struct{}, len(clips))
	if samePlan {
		for _, c := range clips {
			keep[filepath.Base(c.OutputFile)] = struct{}{}
		}
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("export: list output dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == RecordName || !strings.HasPrefix(name, clipPrefix) {
			continue
		}
		if _, ok := keep[name]; ok && !strings.Contains(name, partialInfix) {
			continue
		}
		if err := os.Remove(filepath.Join(outputDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("export: remove stale %s: %w", name, err)
		}
		removed++
	}
	if err := os.Remove(recordPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("export: remove stale record: %w", err)
	}
	if removed > 0 {
		logger.Info("removed stale export files",
			logging.String(logging.FieldEventType, "export_cleanup"),
			logging.Int("removed", removed),
			logging.Bool("same_plan", samePlan),
		)
	}
	if !fileExists(planPath) || !samePlan {
		if err := fileutil.WriteJSONAtomic(planPath, current); err != nil {
			return fmt.Errorf("export: write plan: %w", err)
		}
	}
	return nil
}

func (e *Exporter) extractAll(ctx context.Context, clips []Clip, pending []int, outputDir string) []SegmentFailure {
	if len(pending) == 0 {
		return nil
	}
	workers := e.workers
	if workers > len(pending) {
		workers = len(pending)
	}
	ext := clipExt(clips[0].SourcePath)

	var (
		mu       sync.Mutex
		failures []SegmentFailure
		wg       sync.WaitGroup
	)
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				c := clips[i]
				if err := e.extractOne(ctx, c, filepath.Join(outputDir, partialName(c.SegmentID, ext))); err != nil {
					e.report(ResultFailed)
					mu.Lock()
					failures = append(failures, SegmentFailure{SegmentID: c.SegmentID, Err: err})
					mu.Unlock()
					continue
				}
				e.report(ResultCreated)
			}
		}()
	}

feed:
	for _, i := range pending {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	slices.SortFunc(failures, func(a, b SegmentFailure) int { return a.SegmentID - b.SegmentID })
	return failures
}

func (e *Exporter) extractOne(ctx context.Context, c Clip, partial string) error {
	if err := e.extractor.Extract(ctx, c.SourcePath, c.Start, c.Duration, partial); err != nil {
		_ = os.Remove(partial)
		if !errors.Is(err, ErrExtractionFailed) {
			err = fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}
		return fmt.Errorf("segment %d: %w", c.SegmentID, err)
	}
	if !fileExists(partial) {
		return fmt.Errorf("segment %d: %w: extractor produced no output", c.SegmentID, ErrExtractionFailed)
	}
	if err := os.Rename(partial, c.OutputFile); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("segment %d: rename clip: %w", c.SegmentID, err)
	}
	return nil
}

func (e *Exporter) report(result string) {
	if e.observe != nil {
		e.observe(result)
	}
}

// ReadRecord loads a scene_segments.json record.
func ReadRecord(path string) ([]Clip, error) {
	var clips []Clip
	if err := fileutil.ReadJSON(path, &clips); err != nil {
		return nil, err
	}
	return clips, nil
}

func readRecord(path string) ([]Clip, bool) {
	clips, err := ReadRecord(path)
	return clips, err == nil
}

func allExist(clips []Clip) bool {
	for _, c := range clips {
		if !fileExists(c.OutputFile) {
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
