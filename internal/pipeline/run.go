package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vast/internal/align"
	"vast/internal/export"
	"vast/internal/frames"
	"vast/internal/logging"
	"vast/internal/metrics"
	"vast/internal/runstore"
	"vast/internal/segment"
	"vast/internal/services"
)

// Stage names, in execution order.
const (
	StageInspect    = "inspect"
	StageSample     = "sample"
	StageDetect     = "detect"
	StageExport     = "export"
	StageTranscribe = "transcribe"
	StageAlign      = "align"
	StagePublish    = "publish"
)

// Stages lists every stage in execution order.
func Stages() []string {
	return []string{StageInspect, StageSample, StageDetect, StageExport, StageTranscribe, StageAlign, StagePublish}
}

// RunOptions adjusts a single run.
type RunOptions struct {
	// TranscriptPath supplies an existing SRT or Whisper JSON transcript. It
	// takes precedence over the configured transcriber.
	TranscriptPath string
	// StopAfter ends the run successfully after the named stage.
	StopAfter string
}

// Outcome carries the artifacts of a finished run.
type Outcome struct {
	Run      *runstore.Run
	Layout   Layout
	Segments []segment.Segment
	Clips    []export.Clip
	Sections []align.Section
	Dropped  []align.TimeSpan
	// Published lists object keys written by the publish stage.
	Published []string
}

type stageOutcome struct {
	skipped bool
	message string
}

type stageFunc func(ctx context.Context, st *runState) (stageOutcome, error)

type pipelineStage struct {
	name string
	run  stageFunc
}

// runState is the working set passed between stages of one run.
type runState struct {
	run    *runstore.Run
	layout Layout
	source string
	opts   RunOptions
	logger *slog.Logger

	frames      []frames.Frame
	segments    []segment.Segment
	clips       []export.Clip
	spans       []align.TimeSpan
	haveSpans   bool
	transcript  string
	sections    []align.Section
	dropped     []align.TimeSpan
	publishKeys []string
}

// Run executes the pipeline for source. The returned Outcome is non-nil
// whenever a run record was created, including on failure.
func (m *Manager) Run(ctx context.Context, source string, opts RunOptions) (*Outcome, error) {
	source, err := m.resolveSource(source)
	if err != nil {
		return nil, err
	}
	if opts.StopAfter != "" && !isStage(opts.StopAfter) {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "parse options",
			fmt.Sprintf("unknown stage %q; expected one of %s", opts.StopAfter, strings.Join(Stages(), ", ")), nil)
	}
	if opts.TranscriptPath != "" {
		if _, err := os.Stat(opts.TranscriptPath); err != nil {
			return nil, services.Wrap(services.ErrNotFound, "pipeline", "locate transcript", opts.TranscriptPath, err)
		}
	}

	ctx = services.WithRequestID(ctx, uuid.NewString())
	if !m.skipPreflight {
		if err := m.runPreflightChecks(ctx, logging.WithContext(ctx, m.logger)); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "preflight", "", err)
		}
	}

	layout := LayoutFor(m.cfg.Paths.WorkDir, source)
	run, err := m.store.NewRun(ctx, runstore.Run{
		SourcePath: source,
		WorkDir:    layout.Root,
		Strategy:   m.cfg.Detection.Strategy,
		Threshold:  m.cfg.Detection.Threshold,
		Interval:   m.cfg.Sampling.IntervalSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, m.logger)
	st := &runState{run: run, layout: layout, source: source, opts: opts, logger: logger}

	run.Status = runstore.StatusRunning
	if err := m.store.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run start: %w", err)
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("source_file", source),
		logging.String("work_dir", layout.Root),
		logging.String("strategy", run.Strategy),
		logging.Float64("threshold", run.Threshold),
		logging.Float64("interval_seconds", run.Interval),
	)

	start := time.Now()
	runErr := m.executeStages(ctx, st)
	m.finishRun(ctx, st, runErr, time.Since(start))
	return st.outcome(), runErr
}

func (m *Manager) stages() []pipelineStage {
	return []pipelineStage{
		{name: StageInspect, run: m.inspect},
		{name: StageSample, run: m.sample},
		{name: StageDetect, run: m.detect},
		{name: StageExport, run: m.export},
		{name: StageTranscribe, run: m.transcribe},
		{name: StageAlign, run: m.align},
		{name: StagePublish, run: m.publish},
	}
}

func (m *Manager) executeStages(ctx context.Context, st *runState) error {
	if err := os.MkdirAll(st.layout.Root, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "create run directory", st.layout.Root, err)
	}
	for _, stg := range m.stages() {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrTransient, stg.name, "run stage", "run interrupted", context.Cause(ctx))
		}
		if err := m.executeStage(ctx, st, stg); err != nil {
			return err
		}
		if st.opts.StopAfter == stg.name {
			st.logger.Info("run stopped after stage",
				logging.String(logging.FieldEventType, "run_stop_after"),
				logging.String(logging.FieldStage, stg.name),
			)
			return nil
		}
	}
	return nil
}

func (m *Manager) executeStage(ctx context.Context, st *runState, stg pipelineStage) error {
	stageCtx := logging.WithStage(ctx, stg.name)
	stageLogger := logging.WithContext(stageCtx, m.logger)
	st.logger = stageLogger

	st.run.CurrentStage = stg.name
	if err := m.store.Update(stageCtx, st.run); err != nil {
		return fmt.Errorf("persist stage transition: %w", err)
	}
	if err := m.store.StartStage(stageCtx, st.run.ID, stg.name); err != nil {
		return fmt.Errorf("record stage start: %w", err)
	}

	stageStart := time.Now()
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	outcome, err := stg.run(stageCtx, st)
	elapsed := time.Since(stageStart)
	metrics.ObserveStage(stg.name, elapsed)

	if err != nil {
		details := services.Describe(err)
		if finishErr := m.store.FinishStage(stageCtx, st.run.ID, stg.name, runstore.StatusFailed, details.Message); finishErr != nil {
			stageLogger.Error("failed to persist stage failure", logging.Error(finishErr))
		}
		return err
	}

	status := runstore.StatusCompleted
	if outcome.skipped {
		status = runstore.StatusSkipped
	}
	if err := m.store.FinishStage(stageCtx, st.run.ID, stg.name, status, outcome.message); err != nil {
		return fmt.Errorf("record stage result: %w", err)
	}
	if err := m.store.Update(stageCtx, st.run); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("stage_status", string(status)),
		logging.String("stage_message", outcome.message),
		logging.Duration("stage_duration", elapsed),
	)
	return nil
}

func (m *Manager) finishRun(ctx context.Context, st *runState, runErr error, elapsed time.Duration) {
	logger := logging.WithContext(ctx, m.logger)
	run := st.run
	if runErr == nil {
		run.Status = runstore.StatusCompleted
		run.CurrentStage = ""
		run.ErrorKind = ""
		run.ErrorMessage = ""
	} else {
		details := services.Describe(runErr)
		run.Status = services.FailureStatus(runErr)
		run.ErrorKind = details.Kind
		run.ErrorMessage = details.Message
	}

	// The caller's context may already be cancelled; the final status must
	// still be written.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.Update(persistCtx, run); err != nil {
		logger.Error("failed to persist run result", logging.Error(err))
	}
	metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()

	if runErr != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			logging.String("resolved_status", string(run.Status)),
			logging.String("error_kind", run.ErrorKind),
			logging.String("error_message", run.ErrorMessage),
			logging.String(logging.FieldStage, run.CurrentStage),
			logging.String(logging.FieldErrorHint, failureHint(runErr)),
			logging.Error(runErr),
		)
		return
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("segment_count", run.SegmentCount),
		logging.Int("clip_count", run.ClipCount),
		logging.Int("section_count", run.SectionCount),
		logging.Int("dropped_spans", run.DroppedSpans),
		logging.Duration("run_duration", elapsed),
	)
}

func (m *Manager) resolveSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", services.Wrap(services.ErrValidation, "pipeline", "resolve source", "source path is empty", nil)
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "pipeline", "resolve source", source, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "pipeline", "resolve source", abs, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "pipeline", "resolve source", abs+" is a directory", nil)
	}
	return abs, nil
}

func (st *runState) outcome() *Outcome {
	return &Outcome{
		Run:      st.run,
		Layout:   st.layout,
		Segments: st.segments,
		Clips:    st.clips,
		Sections: st.sections,
		Dropped:  st.dropped,

		Published: st.publishKeys,
	}
}

func isStage(name string) bool {
	for _, s := range Stages() {
		if s == name {
			return true
		}
	}
	return false
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "check the configuration and rerun"
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrNotFound):
		return "inspect the source video and rerun"
	case errors.Is(err, services.ErrExternalTool):
		return "check the tool output above; rerunning resumes from the failed stage"
	default:
		return "rerun the same source to resume"
	}
}
