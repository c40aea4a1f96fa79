package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"vast/internal/align"
	"vast/internal/config"
	"vast/internal/embedding"
	"vast/internal/export"
	"vast/internal/fileutil"
	"vast/internal/frames"
	"vast/internal/logging"
	"vast/internal/media/ffprobe"
	"vast/internal/metrics"
	"vast/internal/segment"
	"vast/internal/services"
	"vast/internal/similarity"
	"vast/internal/transcript"
)

func (m *Manager) inspect(ctx context.Context, st *runState) (stageOutcome, error) {
	prober := ffprobe.NewProber(m.cfg.Sampling.FFprobeBinary)
	if m.probeRun != nil {
		prober.WithRunner(m.probeRun)
	}
	result, err := prober.Inspect(ctx, st.source)
	if err != nil {
		return stageOutcome{}, services.Wrap(services.ErrExternalTool, StageInspect, "ffprobe", "could not inspect source", err)
	}
	video, err := result.VideoStream()
	if err != nil {
		return stageOutcome{}, services.Wrap(services.ErrValidation, StageInspect, "select video stream", st.source, err)
	}
	duration := result.DurationSeconds()
	st.logger.Info("source inspected",
		logging.String(logging.FieldEventType, "source_inspected"),
		logging.String("video_codec", video.CodecName),
		logging.Int("width", video.Width),
		logging.Int("height", video.Height),
		logging.Float64("frame_rate", video.FrameRate()),
		logging.Float64("duration_seconds", duration),
		logging.Bool("has_audio", result.HasAudio()),
		logging.Int("expected_samples", result.ExpectedSamples(m.cfg.Sampling.IntervalSeconds)),
	)
	if duration > 0 && duration < m.cfg.Sampling.IntervalSeconds {
		logging.WarnWithContext(st.logger, "source shorter than sampling interval", "short_source",
			logging.Float64("duration_seconds", duration),
			logging.String(logging.FieldImpact, "a single frame and segment will be produced"),
			logging.String(logging.FieldErrorHint, "lower sampling.interval_seconds for short videos"),
		)
	}
	return stageOutcome{message: fmt.Sprintf("%s %dx%d %.1fs", video.CodecName, video.Width, video.Height, duration)}, nil
}

func (m *Manager) sample(ctx context.Context, st *runState) (stageOutcome, error) {
	sampler := frames.NewFFmpegSampler(m.cfg.Sampling.FFmpegBinary, st.layout.FramesDir,
		frames.WithCommandRunner(m.run),
		frames.WithLogger(st.logger),
	)
	seq, err := sampler.Sample(ctx, st.source, m.cfg.Sampling.IntervalSeconds)
	if err != nil {
		if errors.Is(err, frames.ErrNoFrames) {
			return stageOutcome{}, services.Wrap(services.ErrValidation, StageSample, "sample frames", "ffmpeg produced no frames", err)
		}
		return stageOutcome{}, services.Wrap(services.ErrExternalTool, StageSample, "sample frames", "", err)
	}
	st.frames = seq
	st.run.FrameCount = len(seq)
	metrics.FramesSampledTotal.Add(float64(len(seq)))
	return stageOutcome{message: fmt.Sprintf("%d frames", len(seq))}, nil
}

// detectParams records the inputs that produced segments.json so a rerun
// with the same inputs can reuse it.
type detectParams struct {
	Strategy      string  `json:"strategy"`
	Threshold     float64 `json:"threshold"`
	Interval      float64 `json:"interval"`
	FrameCount    int     `json:"frame_count"`
	AnalysisWidth int     `json:"analysis_width,omitempty"`
	Model         string  `json:"model,omitempty"`
}

func (m *Manager) currentDetectParams(frameCount int) detectParams {
	p := detectParams{
		Strategy:   m.cfg.Detection.Strategy,
		Threshold:  m.cfg.Detection.Threshold,
		Interval:   m.cfg.Sampling.IntervalSeconds,
		FrameCount: frameCount,
	}
	if p.Strategy == config.StrategyEmbedding {
		p.Model = m.cfg.Embedding.ModelPath
	} else {
		p.AnalysisWidth = m.cfg.Detection.AnalysisWidth
	}
	return p
}

func (m *Manager) detect(ctx context.Context, st *runState) (stageOutcome, error) {
	params := m.currentDetectParams(len(st.frames))
	total := float64(len(st.frames)) * params.Interval
	if segs, ok := reuseSegments(st.layout, params, total); ok {
		st.segments = segs
		st.run.SegmentCount = len(segs)
		st.logger.Info("reusing detected segments",
			logging.String(logging.FieldEventType, "segments_reused"),
			logging.Int("segment_count", len(segs)),
		)
		return stageOutcome{message: fmt.Sprintf("%d segments (reused)", len(segs))}, nil
	}

	strategy, closeStrategy, err := m.strategy(st.logger)
	if err != nil {
		return stageOutcome{}, err
	}
	defer closeStrategy()

	cmp, err := similarity.NewComparator(strategy)
	if err != nil {
		return stageOutcome{}, services.Wrap(services.ErrConfiguration, StageDetect, "build comparator", "", err)
	}
	detector := segment.NewDetector(
		segment.WithWorkers(m.cfg.Detection.Workers),
		segment.WithLogger(st.logger),
	)
	counted := countingComparator{
		FrameComparator: cmp,
		compared:        metrics.FramesComparedTotal.WithLabelValues(cmp.Name()),
	}
	segs, err := detector.Detect(ctx, st.frames, params.Interval, counted, params.Threshold)
	if err != nil {
		return stageOutcome{}, classifyDetectError(err)
	}

	if err := segment.WriteSegments(st.layout.SegmentsPath, segs); err != nil {
		return stageOutcome{}, services.Wrap(services.ErrTransient, StageDetect, "write segments", st.layout.SegmentsPath, err)
	}
	if err := fileutil.WriteJSONAtomic(st.layout.detectParamsPath(), params); err != nil {
		logging.WarnWithContext(st.logger, "detection parameters not recorded", "detect_params_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "detection reruns on the next run"),
		)
	}
	st.segments = segs
	st.run.SegmentCount = len(segs)
	metrics.SegmentsDetectedTotal.Add(float64(len(segs)))
	return stageOutcome{message: fmt.Sprintf("%d segments", len(segs))}, nil
}

func reuseSegments(layout Layout, want detectParams, total float64) ([]segment.Segment, bool) {
	var got detectParams
	if err := fileutil.ReadJSON(layout.detectParamsPath(), &got); err != nil || got != want {
		return nil, false
	}
	segs, err := segment.ReadSegments(layout.SegmentsPath)
	if err != nil || segment.Validate(segs, total) != nil {
		return nil, false
	}
	return segs, true
}

// strategy builds the configured comparison strategy. The returned func
// releases any model it loaded.
func (m *Manager) strategy(logger *slog.Logger) (similarity.Strategy, func(), error) {
	noop := func() {}
	if m.cfg.Detection.Strategy != config.StrategyEmbedding {
		return similarity.Structural{AnalysisWidth: m.cfg.Detection.AnalysisWidth}, noop, nil
	}
	if m.embedder != nil {
		return similarity.Embedding{Embedder: m.embedder}, noop, nil
	}
	if m.runtime == nil {
		return nil, noop, services.Wrap(services.ErrConfiguration, StageDetect, "load embedding model", "embedding runtime not configured", nil)
	}
	encoder, err := embedding.NewCLIPEncoder(m.runtime, embedding.Config{
		ModelPath:  m.cfg.Embedding.ModelPath,
		InputName:  m.cfg.Embedding.InputName,
		OutputName: m.cfg.Embedding.OutputName,
		ImageSize:  m.cfg.Embedding.ImageSize,
	}, logger)
	if err != nil {
		return nil, noop, services.Wrap(services.ErrConfiguration, StageDetect, "load embedding model", m.cfg.Embedding.ModelPath, err)
	}
	release := func() {
		if err := encoder.Close(); err != nil {
			logger.Warn("embedding model release failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "embedding_close_failed"),
			)
		}
	}
	return similarity.Embedding{Embedder: encoder}, release, nil
}

func classifyDetectError(err error) error {
	switch {
	case errors.Is(err, segment.ErrInsufficientFrames),
		errors.Is(err, segment.ErrInvalidInput),
		errors.Is(err, similarity.ErrDimensionMismatch),
		errors.Is(err, similarity.ErrImageTooSmall),
		errors.Is(err, similarity.ErrVectorLength):
		return services.Wrap(services.ErrValidation, StageDetect, "detect boundaries", "", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTransient, StageDetect, "detect boundaries", "interrupted", err)
	default:
		return services.Wrap(services.ErrExternalTool, StageDetect, "detect boundaries", "", err)
	}
}

// countingComparator counts scored pairs.
type countingComparator struct {
	segment.FrameComparator
	compared prometheus.Counter
}

func (c countingComparator) Compare(a, b frames.Frame) (float64, error) {
	c.compared.Inc()
	return c.FrameComparator.Compare(a, b)
}

func (m *Manager) export(ctx context.Context, st *runState) (stageOutcome, error) {
	exporter := export.NewExporter(m.extractor,
		export.WithWorkers(m.cfg.Export.Workers),
		export.WithLogger(st.logger),
		export.WithObserver(metrics.ObserveClip),
	)
	clips, err := exporter.Export(ctx, st.source, st.segments, st.layout.ClipsDir)
	if err != nil {
		var exportErr *export.ExportError
		switch {
		case errors.As(err, &exportErr):
			return stageOutcome{}, services.Wrap(services.ErrExternalTool, StageExport, "extract clips",
				fmt.Sprintf("segments %v failed", exportErr.SegmentIDs()), err)
		case errors.Is(err, export.ErrNoSegments):
			return stageOutcome{}, services.Wrap(services.ErrValidation, StageExport, "extract clips", "", err)
		default:
			return stageOutcome{}, services.Wrap(services.ErrTransient, StageExport, "extract clips", "", err)
		}
	}
	st.clips = clips
	st.run.ClipCount = len(clips)
	return stageOutcome{message: fmt.Sprintf("%d clips", len(clips))}, nil
}

func (m *Manager) transcribe(ctx context.Context, st *runState) (stageOutcome, error) {
	provider, err := m.transcriptProvider(st)
	if err != nil {
		return stageOutcome{}, err
	}
	if provider == nil {
		return stageOutcome{skipped: true, message: "transcription disabled"}, nil
	}
	spans, err := provider.Spans(ctx, st.source)
	if err != nil {
		if errors.Is(err, transcript.ErrUnsupportedFormat) {
			return stageOutcome{}, services.Wrap(services.ErrValidation, StageTranscribe, "read transcript", "", err)
		}
		return stageOutcome{}, services.Wrap(services.ErrExternalTool, StageTranscribe, "transcribe", "", err)
	}
	st.spans = spans
	st.haveSpans = true
	return stageOutcome{message: fmt.Sprintf("%d spans", len(spans))}, nil
}

// transcriptProvider picks the transcript source for a run: a supplied file
// (copied into the run directory), an injected provider, or the configured
// whisper command. It returns nil when none applies.
func (m *Manager) transcriptProvider(st *runState) (transcript.Provider, error) {
	switch {
	case st.opts.TranscriptPath != "":
		if err := os.MkdirAll(st.layout.TranscriptDir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrTransient, StageTranscribe, "create transcript dir", "", err)
		}
		src, err := filepath.Abs(st.opts.TranscriptPath)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, StageTranscribe, "resolve transcript", st.opts.TranscriptPath, err)
		}
		dest := filepath.Join(st.layout.TranscriptDir, filepath.Base(src))
		if dest != src {
			if err := fileutil.CopyFile(src, dest); err != nil {
				return nil, services.Wrap(services.ErrTransient, StageTranscribe, "copy transcript", src, err)
			}
		}
		st.transcript = dest
		return transcript.FileProvider{Path: dest}, nil
	case m.transcriber != nil:
		return m.transcriber, nil
	case m.cfg.Transcription.Enabled:
		w := transcript.NewWhisperTranscriber(transcript.WhisperConfig{
			Command:   m.cfg.Transcription.Command,
			Model:     m.cfg.Transcription.Model,
			Language:  m.cfg.Transcription.Language,
			OutputDir: st.layout.TranscriptDir,
		}, st.logger)
		w.WithCommandRunner(m.run)
		st.transcript = w.SRTPath(st.source)
		return w, nil
	default:
		return nil, nil
	}
}

func (m *Manager) align(_ context.Context, st *runState) (stageOutcome, error) {
	if !st.haveSpans {
		return stageOutcome{skipped: true, message: "no transcript"}, nil
	}
	result := align.Align(st.spans, st.segments)
	if err := align.WriteSections(st.layout.SectionsPath, result.Sections); err != nil {
		return stageOutcome{}, services.Wrap(services.ErrTransient, StageAlign, "write sections", st.layout.SectionsPath, err)
	}
	st.sections = result.Sections
	st.dropped = result.Dropped
	st.run.SectionCount = len(result.Sections)
	st.run.DroppedSpans = result.DroppedSpanCount
	metrics.SpansDroppedTotal.Add(float64(result.DroppedSpanCount))

	if result.DroppedSpanCount > 0 {
		logging.WarnWithContext(st.logger, "transcript spans not contained by any segment", "spans_dropped",
			logging.Int("dropped_spans", result.DroppedSpanCount),
			logging.Int("total_spans", len(st.spans)),
			logging.String(logging.FieldImpact, "their text is missing from sections.json"),
			logging.String(logging.FieldErrorHint, "spans crossing a scene boundary are not split; a lower threshold yields longer scenes"),
		)
	}
	return stageOutcome{message: fmt.Sprintf("%d sections, %d spans dropped", len(result.Sections), result.DroppedSpanCount)}, nil
}

func (m *Manager) publish(ctx context.Context, st *runState) (stageOutcome, error) {
	if m.mirror == nil {
		return stageOutcome{skipped: true, message: "storage mirror disabled"}, nil
	}
	files := publishFiles(st)
	keys, err := m.mirror.Upload(ctx, st.run.ID, st.layout.Root, files)
	if err != nil {
		return stageOutcome{}, services.Wrap(services.ErrTransient, StagePublish, "mirror artifacts", "", err)
	}
	st.publishKeys = keys
	metrics.ObjectsUploadedTotal.Add(float64(len(keys)))
	return stageOutcome{message: fmt.Sprintf("%d objects", len(keys))}, nil
}

// publishFiles lists the run artifacts that exist, relative to the run root.
func publishFiles(st *runState) []string {
	candidates := []string{
		st.layout.SegmentsPath,
		filepath.Join(st.layout.ClipsDir, export.RecordName),
		st.layout.SectionsPath,
	}
	for _, c := range st.clips {
		candidates = append(candidates, c.OutputFile)
	}
	if st.transcript != "" {
		candidates = append(candidates, st.transcript)
	}

	seen := make(map[string]struct{}, len(candidates))
	var files []string
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		rel := st.layout.rel(path)
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}
		files = append(files, rel)
	}
	sort.Strings(files)
	return files
}
