package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vast/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline run history",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsRemoveCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFilters)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit, statuses...)
			if err != nil {
				return err
			}
			if asJSON {
				views := make([]runView, 0, len(runs))
				for _, run := range runs {
					views = append(views, newRunView(run))
				}
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					string(run.Status),
					truncate(run.SourcePath, 48),
					strconv.Itoa(run.SegmentCount),
					strconv.Itoa(run.ClipCount),
					formatTimestamp(run.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Source", "Scenes", "Clips", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				isTerminal(out),
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output runs as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			stages, err := store.Stages(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			if asJSON {
				view := newRunView(run)
				view.Stages = make([]stageView, 0, len(stages))
				for _, stage := range stages {
					view.Stages = append(view.Stages, stageView{
						Stage:    stage.Stage,
						Status:   string(stage.Status),
						Message:  stage.Message,
						Duration: stage.Duration().Round(time.Millisecond).String(),
					})
				}
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			fmt.Fprintln(out, renderSectionHeader("Run "+run.ID, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(string(run.Status)), string(run.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Source", statusInfo, run.SourcePath, colorize))
			fmt.Fprintln(out, renderStatusLine("Strategy", statusInfo, fmt.Sprintf("%s (threshold %.2f, interval %.2fs)", run.Strategy, run.Threshold, run.Interval), colorize))
			fmt.Fprintln(out, renderStatusLine("Counts", statusInfo, fmt.Sprintf("frames %d, scenes %d, clips %d, sections %d, dropped %d",
				run.FrameCount, run.SegmentCount, run.ClipCount, run.SectionCount, run.DroppedSpans), colorize))
			if run.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, run.ErrorMessage, colorize))
			}
			if len(stages) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(stages))
			for _, stage := range stages {
				duration := "-"
				if d := stage.Duration(); d > 0 {
					duration = d.Round(time.Millisecond).String()
				}
				rows = append(rows, []string{stage.Stage, string(stage.Status), duration, truncate(stage.Message, 60)})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Status", "Duration", "Message"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				colorize,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run as JSON")
	return cmd
}

func newRunsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a run record (artifacts on disk are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			removed, err := store.Remove(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("run %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed run %s\n", run.ID)
			return nil
		},
	}
}

type runView struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Source       string      `json:"source"`
	WorkDir      string      `json:"work_dir"`
	Strategy     string      `json:"strategy"`
	Threshold    float64     `json:"threshold"`
	Interval     float64     `json:"interval"`
	CurrentStage string      `json:"current_stage,omitempty"`
	ErrorKind    string      `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Frames       int         `json:"frames"`
	Segments     int         `json:"segments"`
	Clips        int         `json:"clips"`
	Sections     int         `json:"sections"`
	DroppedSpans int         `json:"dropped_spans"`
	CreatedAt    string      `json:"created_at"`
	Stages       []stageView `json:"stages,omitempty"`
}

type stageView struct {
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

func newRunView(run *runstore.Run) runView {
	return runView{
		ID:           run.ID,
		Status:       string(run.Status),
		Source:       run.SourcePath,
		WorkDir:      run.WorkDir,
		Strategy:     run.Strategy,
		Threshold:    run.Threshold,
		Interval:     run.Interval,
		CurrentStage: run.CurrentStage,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
		Frames:       run.FrameCount,
		Segments:     run.SegmentCount,
		Clips:        run.ClipCount,
		Sections:     run.SectionCount,
		DroppedSpans: run.DroppedSpans,
		CreatedAt:    run.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parseStatusFilters(values []string) ([]runstore.Status, error) {
	var statuses []runstore.Status
	for _, value := range values {
		status, ok := runstore.ParseStatus(value)
		if !ok {
			var valid []string
			for _, s := range runstore.AllStatuses() {
				valid = append(valid, string(s))
			}
			return nil, fmt.Errorf("unknown status %q (valid: %s)", value, strings.Join(valid, ", "))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
