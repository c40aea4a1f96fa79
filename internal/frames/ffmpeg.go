package frames

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vast/internal/fileutil"
	"vast/internal/logging"
	"vast/internal/services"
)

const manifestName = "frames.json"

// manifest records how a frames directory was produced so it can be reused.
type manifest struct {
	Source   string  `json:"source"`
	Interval float64 `json:"interval"`
	Stem     string  `json:"stem"`
	Count    int     `json:"count"`
}

// FFmpegSampler extracts JPEG frames with ffmpeg's fps filter.
type FFmpegSampler struct {
	binary string
	dir    string
	run    services.CommandRunner
	logger *slog.Logger
}

// Option customizes an FFmpegSampler.
type Option func(*FFmpegSampler)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r services.CommandRunner) Option {
	return func(s *FFmpegSampler) {
		if r != nil {
			s.run = r
		}
	}
}

// WithLogger sets the sampler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FFmpegSampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFFmpegSampler returns a sampler writing frames into dir.
func NewFFmpegSampler(binary, dir string, opts ...Option) *FFmpegSampler {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	s := &FFmpegSampler{
		binary: binary,
		dir:    dir,
		run:    services.RunCommand,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the frames directory.
func (s *FFmpegSampler) Dir() string {
	return s.dir
}

// Sample extracts one frame every interval seconds from mediaPath. A frames
// directory already populated for the same source and interval is reused
// without invoking ffmpeg.
func (s *FFmpegSampler) Sample(ctx context.Context, mediaPath string, interval float64) ([]Frame, error) {
	if interval <= 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return nil, fmt.Errorf("sample frames: interval must be positive, got %v", interval)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}
	stem := Stem(mediaPath)

	if frames, ok := s.reuse(mediaPath, stem, interval); ok {
		s.logger.Info("reusing sampled frames",
			logging.String(logging.FieldEventType, "frames_reused"),
			logging.String("frames_dir", s.dir),
			logging.Int("frame_count", len(frames)),
		)
		return frames, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("sample frames: ensure dir: %w", err)
	}
	if err := clearFrames(s.dir, stem); err != nil {
		return nil, fmt.Errorf("sample frames: clear stale frames: %w", err)
	}

	args := buildSampleArgs(mediaPath, interval, filepath.Join(s.dir, stem+"_%04d.jpg"))
	if err := s.run(ctx, s.binary, args...); err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}

	frames, err := LoadDir(s.dir, stem, interval)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("sample frames: %s: %w", mediaPath, ErrNoFrames)
	}

	m := manifest{Source: mediaPath, Interval: interval, Stem: stem, Count: len(frames)}
	if err := fileutil.WriteJSONAtomic(filepath.Join(s.dir, manifestName), m); err != nil {
		s.logger.Warn("frames manifest not written",
			logging.Error(err),
			logging.String(logging.FieldEventType, "frames_manifest_failed"),
			logging.String(logging.FieldErrorHint, "frames will be re-extracted on the next run"),
			logging.String(logging.FieldImpact, "no effect on this run"),
		)
	}
	s.logger.Info("sampled frames",
		logging.String(logging.FieldEventType, "frames_sampled"),
		logging.Int("frame_count", len(frames)),
		logging.Float64("interval_seconds", interval),
	)
	return frames, nil
}

func (s *FFmpegSampler) reuse(mediaPath, stem string, interval float64) ([]Frame, bool) {
	var m manifest
	if err := fileutil.ReadJSON(filepath.Join(s.dir, manifestName), &m); err != nil {
		return nil, false
	}
	if m.Source != mediaPath || m.Interval != interval || m.Stem != stem || m.Count == 0 {
		return nil, false
	}
	frames, err := LoadDir(s.dir, stem, interval)
	if err != nil || len(frames) != m.Count {
		return nil, false
	}
	return frames, true
}

func buildSampleArgs(mediaPath string, interval float64, pattern string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", mediaPath,
		"-vf", "fps=1/" + strconv.FormatFloat(interval, 'f', -1, 64),
		"-q:v", "2",
		"-start_number", "0",
		pattern,
	}
}

// LoadDir lists the frames named <stem>_NNNN.jpg in dir, ordered by their
// sequence number. Images are not decoded; Frame.Load reads them on demand.
func LoadDir(dir, stem string, interval float64) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list frames: %w", err)
	}
	type numbered struct {
		seq  int
		path string
	}
	var found []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seq, ok := frameSequence(entry.Name(), stem)
		if !ok {
			continue
		}
		found = append(found, numbered{seq: seq, path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	frames := make([]Frame, len(found))
	for i, f := range found {
		frames[i] = Frame{Index: i, Timestamp: float64(i) * interval, Path: f.path}
	}
	return frames, nil
}

func frameSequence(name, stem string) (int, bool) {
	prefix := stem + "_"
	if !strings.HasPrefix(name, prefix) || !strings.EqualFold(filepath.Ext(name), ".jpg") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), filepath.Ext(name))
	if digits == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(digits)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func clearFrames(dir, stem string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := frameSequence(entry.Name(), stem); ok || entry.Name() == manifestName {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}
	return nil
}

// Stem returns the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
