package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vast/internal/services"
)

// Extractor copies the [start, start+duration) range of source into dest
// without re-encoding.
type Extractor interface {
	Extract(ctx context.Context, source string, start, duration float64, dest string) error
}

// FFmpegExtractor extracts clips with ffmpeg stream copy.
type FFmpegExtractor struct {
	binary string
	run    services.CommandRunner
}

// NewFFmpegExtractor returns an extractor using the given ffmpeg binary.
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{binary: binary, run: services.RunCommand}
}

// WithCommandRunner sets a custom command runner (for testing).
func (x *FFmpegExtractor) WithCommandRunner(r services.CommandRunner) {
	if r != nil {
		x.run = r
	}
}

// Extract runs ffmpeg for one clip. A failure wraps ErrExtractionFailed and
// carries ffmpeg's diagnostic output.
func (x *FFmpegExtractor) Extract(ctx context.Context, source string, start, duration float64, dest string) error {
	if err := x.run(ctx, x.binary, buildExtractArgs(source, start, duration, dest)...); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return nil
}

func buildExtractArgs(source string, start, duration float64, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", source,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		dest,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
