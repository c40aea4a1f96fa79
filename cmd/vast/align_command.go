package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vast/internal/align"
	"vast/internal/segment"
	"vast/internal/transcript"
)

var errEmptySegments = errors.New("segment list is empty")

// newAlignCommand aligns a transcript onto an existing segment list without
// touching the run store.
func newAlignCommand() *cobra.Command {
	var output string
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "align <segments.json> <transcript>",
		Short:       "Align transcript spans onto a segment list",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := segment.ReadSegments(args[0])
			if err != nil {
				return fmt.Errorf("read segments: %w", err)
			}
			if len(segments) == 0 {
				return errEmptySegments
			}
			spans, err := transcript.LoadFile(args[1])
			if err != nil {
				return fmt.Errorf("load transcript: %w", err)
			}

			result := align.Align(spans, segments)

			if path := strings.TrimSpace(output); path != "" {
				if err := align.WriteSections(path, result.Sections); err != nil {
					return err
				}
			}
			if asJSON {
				return writeJSON(cmd, result.Sections)
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			fmt.Fprintln(out, renderSectionTable(result.Sections, colorize))
			kind := statusOK
			if result.DroppedSpanCount > 0 {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Dropped spans", kind, fmt.Sprintf("%d of %d", result.DroppedSpanCount, len(spans)), colorize))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write sections.json to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output sections as JSON")
	return cmd
}
