package transcript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const sampleSRT = "1\r\n00:00:01,000 --> 00:00:02,500\r\nHello\r\nthere\r\n\r\n" +
	"2\n00:00:03.250 --> 00:00:04.000 align:start\nSecond cue\n\n" +
	"garbage block\nwithout timing\n\n" +
	"00:01:05,5 --> 01:00:00,000\nNo index\n"

func TestParseSRT(t *testing.T) {
	spans, err := ParseSRT(strings.NewReader(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d: %+v", len(spans), spans)
	}
	if spans[0].Start != 1 || spans[0].End != 2.5 || spans[0].Text != "Hello there" {
		t.Fatalf("unexpected first span %+v", spans[0])
	}
	if spans[1].Start != 3.25 || spans[1].End != 4 || spans[1].Text != "Second cue" {
		t.Fatalf("unexpected second span %+v", spans[1])
	}
	if spans[2].Start != 65.5 || spans[2].End != 3600 || spans[2].Text != "No index" {
		t.Fatalf("unexpected third span %+v", spans[2])
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "00:00:00,000", want: 0},
		{in: "01:02:03,004", want: 3723.004},
		{in: "00:10.5", want: 10.5},
		{in: "", wantErr: true},
		{in: "1:2", wantErr: true},
		{in: "aa:bb:cc,ddd", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseTimestamp(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseTimestamp(%q): %v", tt.in, err)
		}
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "talk.json")
	payload := `{"segments":[{"start":0.5,"end":1.5,"text":" hi "},{"start":2,"end":3,"text":"bye"}]}`
	if err := os.WriteFile(jsonPath, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	spans, err := FileProvider{Path: jsonPath}.Spans(context.Background(), "ignored.mp4")
	if err != nil {
		t.Fatalf("Spans: %v", err)
	}
	if len(spans) != 2 || spans[0].Start != 0.5 || spans[1].Text != "bye" {
		t.Fatalf("unexpected spans %+v", spans)
	}

	txtPath := filepath.Join(dir, "talk.txt")
	if err := os.WriteFile(txtPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(txtPath); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestWhisperTranscriberRunsCommandAndParses(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "transcript")
	w := NewWhisperTranscriber(WhisperConfig{
		Command:   "whisper",
		Model:     "small",
		Language:  "en-US",
		OutputDir: outDir,
	}, nil)

	var calls [][]string
	w.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return os.WriteFile(filepath.Join(outDir, "lecture.srt"), []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n"), 0o644)
	})

	spans, err := w.Spans(context.Background(), "/videos/lecture.mp4")
	if err != nil {
		t.Fatalf("Spans: %v", err)
	}
	if len(spans) != 1 || spans[0].Text != "Hi" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one whisper call, got %d", len(calls))
	}
	args := calls[0]
	if args[0] != "whisper" || args[1] != "/videos/lecture.mp4" {
		t.Fatalf("unexpected command %v", args)
	}
	for _, want := range []string{"--output_format", "srt", "--model", "small", "--language", "en"} {
		if !slices.Contains(args, want) {
			t.Fatalf("expected %q in args %v", want, args)
		}
	}
	if slices.Contains(args, "en-US") {
		t.Fatalf("language tag should be reduced to its base: %v", args)
	}

	// A second call reuses the transcript on disk.
	if _, err := w.Spans(context.Background(), "/videos/lecture.mp4"); err != nil {
		t.Fatalf("second Spans: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected transcript reuse, got %d calls", len(calls))
	}
}

func TestWhisperTranscriberErrors(t *testing.T) {
	outDir := t.TempDir()
	w := NewWhisperTranscriber(WhisperConfig{OutputDir: outDir}, nil)
	w.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("boom")
	})
	if _, err := w.Spans(context.Background(), "clip.mp4"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected runner error, got %v", err)
	}

	w.WithCommandRunner(func(context.Context, string, ...string) error { return nil })
	if _, err := w.Spans(context.Background(), "clip.mp4"); err == nil {
		t.Fatal("expected error when whisper writes nothing")
	}

	bad := NewWhisperTranscriber(WhisperConfig{OutputDir: outDir, Language: "!!"}, nil)
	bad.WithCommandRunner(func(context.Context, string, ...string) error { return nil })
	if _, err := bad.Spans(context.Background(), "other.mp4"); err == nil {
		t.Fatal("expected language error")
	}
}
