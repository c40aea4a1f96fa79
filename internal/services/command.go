package services

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// CommandRunner executes an external tool. Stages accept one so tests can
// substitute a fake for ffmpeg or whisper.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// RunCommand executes name with args and folds the tool's stderr into the
// returned error.
func RunCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", name, ctxErr)
		}
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
