package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"vast/internal/align"
	"vast/internal/logging"
	"vast/internal/services"
)

// ErrUnsupportedFormat reports a transcript file with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported transcript format")

// Provider yields transcript spans for a media file.
type Provider interface {
	Spans(ctx context.Context, mediaPath string) ([]align.TimeSpan, error)
}

// FileProvider reads spans from an existing transcript file.
type FileProvider struct {
	Path string
}

// Spans parses the transcript. The media path is ignored.
func (p FileProvider) Spans(_ context.Context, _ string) ([]align.TimeSpan, error) {
	return LoadFile(p.Path)
}

// LoadFile parses an SRT or Whisper JSON transcript by extension.
func LoadFile(path string) ([]align.TimeSpan, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return ParseSRTFile(path)
	case ".json":
		return LoadWhisperJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// WhisperConfig configures the Whisper command line transcriber.
type WhisperConfig struct {
	Command   string
	Model     string
	Language  string
	OutputDir string
}

// WhisperTranscriber runs a Whisper CLI and parses the SRT it writes.
type WhisperTranscriber struct {
	cfg    WhisperConfig
	run    services.CommandRunner
	logger *slog.Logger
}

// NewWhisperTranscriber constructs a transcriber.
func NewWhisperTranscriber(cfg WhisperConfig, logger *slog.Logger) *WhisperTranscriber {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = "whisper"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WhisperTranscriber{cfg: cfg, run: services.RunCommand, logger: logger}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperTranscriber) WithCommandRunner(r services.CommandRunner) {
	if r != nil {
		w.run = r
	}
}

// SRTPath returns where the transcript for mediaPath is written.
func (w *WhisperTranscriber) SRTPath(mediaPath string) string {
	base := filepath.Base(mediaPath)
	return filepath.Join(w.cfg.OutputDir, strings.TrimSuffix(base, filepath.Ext(base))+".srt")
}

// Spans transcribes mediaPath, reusing an SRT left by an earlier run.
func (w *WhisperTranscriber) Spans(ctx context.Context, mediaPath string) ([]align.TimeSpan, error) {
	srtPath := w.SRTPath(mediaPath)
	if info, err := os.Stat(srtPath); err == nil && info.Size() > 0 {
		w.logger.Info("reusing transcript",
			logging.String(logging.FieldEventType, "transcript_reused"),
			logging.String("srt", srtPath),
		)
		return ParseSRTFile(srtPath)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat transcript: %w", err)
	}

	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}
	args, err := w.buildArgs(mediaPath)
	if err != nil {
		return nil, err
	}
	if err := w.run(ctx, w.cfg.Command, args...); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if _, err := os.Stat(srtPath); err != nil {
		return nil, fmt.Errorf("whisper produced no transcript at %s: %w", srtPath, err)
	}
	spans, err := ParseSRTFile(srtPath)
	if err != nil {
		return nil, err
	}
	w.logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_completed"),
		logging.String("srt", srtPath),
		logging.Int("span_count", len(spans)),
	)
	return spans, nil
}

func (w *WhisperTranscriber) buildArgs(mediaPath string) ([]string, error) {
	args := []string{
		mediaPath,
		"--output_dir", w.cfg.OutputDir,
		"--output_format", "srt",
	}
	if model := strings.TrimSpace(w.cfg.Model); model != "" {
		args = append(args, "--model", model)
	}
	if lang := strings.TrimSpace(w.cfg.Language); lang != "" {
		code, err := whisperLanguage(lang)
		if err != nil {
			return nil, err
		}
		args = append(args, "--language", code)
	}
	return args, nil
}

// whisperLanguage reduces a BCP 47 tag such as "en-US" to the base language
// code Whisper expects.
func whisperLanguage(tag string) (string, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("transcription language %q: %w", tag, err)
	}
	base, _ := parsed.Base()
	return base.String(), nil
}
