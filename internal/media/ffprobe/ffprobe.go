package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream reports media without a decodable video stream.
var ErrNoVideoStream = errors.New("no video stream")

// OutputRunner executes a command and returns its stdout.
type OutputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Result is the parsed ffprobe report for one media file.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// Format is container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Prober runs ffprobe.
type Prober struct {
	binary string
	run    OutputRunner
}

// NewProber returns a prober for binary ("ffprobe" when empty).
func NewProber(binary string) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, run: execOutput}
}

// WithRunner replaces the command runner (for testing).
func (p *Prober) WithRunner(run OutputRunner) *Prober {
	if run != nil {
		p.run = run
	}
	return p
}

// Inspect probes path and decodes the JSON report.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	output, err := p.run(ctx, p.binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, error) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, nil
		}
	}
	return Stream{}, ErrNoVideoStream
}

// HasAudio reports whether any audio stream is present.
func (r Result) HasAudio() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return true
		}
	}
	return false
}

// DurationSeconds returns the container duration, falling back to the video
// stream duration. It is 0 when neither is reported.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if video, err := r.VideoStream(); err == nil {
		if d := parseFloat(video.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// FrameRate parses a rational rate such as "30000/1001". Unknown rates are 0.
func (s Stream) FrameRate() float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s.AvgFrameRate), "/")
	if !ok {
		return math.Max(parseFloat(num), 0)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d <= 0 || n <= 0 {
		return 0
	}
	return n / d
}

// ExpectedSamples estimates how many frames sampling at interval produces.
func (r Result) ExpectedSamples(interval float64) int {
	duration := r.DurationSeconds()
	if interval <= 0 || duration <= 0 {
		return 0
	}
	return int(math.Ceil(duration / interval))
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
