package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vast/internal/align"
	"vast/internal/config"
	"vast/internal/embedding"
	"vast/internal/export"
	"vast/internal/logging"
	"vast/internal/metrics"
	"vast/internal/pipeline"
	"vast/internal/segment"
)

type runFlags struct {
	transcript string
	stopAfter  string
	json       bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Run the full scene pipeline over a video",
		Long: "Sample frames, detect scenes, export clips, transcribe, and align the\n" +
			"transcript onto the scenes. Completed stages are reused on rerun.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, args[0], pipeline.RunOptions{
				TranscriptPath: flags.transcript,
				StopAfter:      flags.stopAfter,
			}, flags.json)
		},
	}
	cmd.Flags().StringVarP(&flags.transcript, "transcript", "t", "", "Existing SRT or Whisper JSON transcript to align")
	cmd.Flags().StringVar(&flags.stopAfter, "stop-after", "", "Stop after the named stage ("+strings.Join(pipeline.Stages(), ", ")+")")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Output the run outcome as JSON")
	return cmd
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect <video>",
		Short: "Sample frames and detect scene boundaries without exporting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, args[0], pipeline.RunOptions{StopAfter: pipeline.StageDetect}, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run outcome as JSON")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "export <video>",
		Short: "Detect scenes and export one clip per scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, args[0], pipeline.RunOptions{StopAfter: pipeline.StageExport}, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run outcome as JSON")
	return cmd
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, source string, opts pipeline.RunOptions, asJSON bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger("cli")
	if err != nil {
		return err
	}
	store, err := ctx.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runCtx := cmd.Context()
	if cfg.Metrics.Enabled {
		server, err := metrics.Start(runCtx, cfg.Metrics.Bind, logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer server.Close()
	}

	mirror, err := pipeline.NewMirrorFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	var managerOpts []pipeline.Option
	if mirror != nil {
		managerOpts = append(managerOpts, pipeline.WithMirror(mirror))
	}
	if cfg.Detection.Strategy == config.StrategyEmbedding {
		rt := embedding.NewRuntime(cfg.Embedding.LibraryPath)
		defer func() {
			if err := rt.Close(); err != nil {
				logger.Warn("onnx runtime shutdown failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "onnx_runtime_close_failed"),
				)
			}
		}()
		managerOpts = append(managerOpts, pipeline.WithEmbeddingRuntime(rt))
	}

	manager := pipeline.NewManager(cfg, store, logger, managerOpts...)
	outcome, runErr := manager.Run(runCtx, source, opts)
	if outcome == nil {
		return runErr
	}

	if asJSON {
		if err := writeJSON(cmd, newOutcomeView(outcome)); err != nil {
			return err
		}
		return runErr
	}

	printOutcome(cmd, outcome)
	return runErr
}

type outcomeView struct {
	RunID     string            `json:"run_id"`
	Status    string            `json:"status"`
	Source    string            `json:"source"`
	Directory string            `json:"directory"`
	Error     string            `json:"error,omitempty"`
	Segments  []segment.Segment `json:"segments"`
	Clips     []export.Clip     `json:"clips"`
	Sections  []align.Section   `json:"sections"`
	Dropped   int               `json:"dropped_spans"`
	Published []string          `json:"published,omitempty"`
}

func newOutcomeView(o *pipeline.Outcome) outcomeView {
	view := outcomeView{
		RunID:     o.Run.ID,
		Status:    string(o.Run.Status),
		Source:    o.Run.SourcePath,
		Directory: o.Layout.Root,
		Error:     o.Run.ErrorMessage,
		Segments:  nonNil(o.Segments),
		Clips:     nonNil(o.Clips),
		Sections:  nonNil(o.Sections),
		Dropped:   len(o.Dropped),
		Published: o.Published,
	}
	return view
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

func printOutcome(cmd *cobra.Command, o *pipeline.Outcome) {
	out := cmd.OutOrStdout()
	colorize := isTerminal(out)

	fmt.Fprintln(out, renderSectionHeader("Run "+o.Run.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(string(o.Run.Status)), string(o.Run.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Directory", statusInfo, o.Layout.Root, colorize))
	if o.Run.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, o.Run.ErrorMessage, colorize))
	}

	if len(o.Segments) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSegmentTable(o.Segments, o.Clips, colorize))
	}
	if len(o.Sections) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionTable(o.Sections, colorize))
	}
	if len(o.Dropped) > 0 {
		fmt.Fprintln(out, renderStatusLine("Dropped spans", statusWarn, strconv.Itoa(len(o.Dropped))+" straddle a scene boundary", colorize))
	}
	if len(o.Published) > 0 {
		fmt.Fprintln(out, renderStatusLine("Published", statusOK, fmt.Sprintf("%d objects", len(o.Published)), colorize))
	}
}

func renderSegmentTable(segments []segment.Segment, clips []export.Clip, fancy bool) string {
	clipByID := make(map[int]string, len(clips))
	for _, clip := range clips {
		clipByID[clip.SegmentID] = filepath.Base(clip.OutputFile)
	}
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		clip := clipByID[seg.ID]
		if clip == "" {
			clip = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(seg.ID),
			formatSeconds(seg.Start),
			formatSeconds(seg.End),
			formatSeconds(seg.Duration),
			clip,
		})
	}
	return renderTable(
		[]string{"Scene", "Start", "End", "Duration", "Clip"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
		fancy,
	)
}

func renderSectionTable(sections []align.Section, fancy bool) string {
	rows := make([][]string, 0, len(sections))
	for _, section := range sections {
		rows = append(rows, []string{
			strconv.Itoa(section.SegmentID),
			formatSeconds(section.Start),
			formatSeconds(section.End),
			truncate(section.Text, 60),
		})
	}
	return renderTable(
		[]string{"Scene", "Start", "End", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
		fancy,
	)
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func runStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "review", "skipped":
		return statusWarn
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}
