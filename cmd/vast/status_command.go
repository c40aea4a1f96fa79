package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vast/internal/preflight"
	"vast/internal/runstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check external tools, directories, and run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, ctx.configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Config present", statusInfo, yesNo(ctx.configSeen), colorize))
			fmt.Fprintln(out, renderStatusLine("Strategy", statusInfo, cfg.Detection.Strategy, colorize))
			fmt.Fprintln(out, renderStatusLine("Transcription", statusInfo, yesNo(cfg.Transcription.Enabled), colorize))
			fmt.Fprintln(out, renderStatusLine("Storage mirror", statusInfo, yesNo(cfg.Storage.Enabled), colorize))

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Checks", colorize))
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Runs", colorize))
			for _, status := range runstore.AllStatuses() {
				count := stats[status]
				if count == 0 {
					continue
				}
				fmt.Fprintln(out, renderStatusLine(string(status), runStatusKind(string(status)), fmt.Sprintf("%d", count), colorize))
			}
			return nil
		},
	}
}
