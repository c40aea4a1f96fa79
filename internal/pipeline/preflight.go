package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vast/internal/logging"
	"vast/internal/preflight"
)

// runPreflightChecks validates tool and directory readiness before a run.
// Returns nil when all checks pass, or an error describing all failures.
func (m *Manager) runPreflightChecks(ctx context.Context, logger *slog.Logger) error {
	if err := m.cfg.EnsureDirectories(); err != nil {
		return err
	}
	var failures []string
	for _, r := range preflight.RunAll(ctx, m.cfg) {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logger.Error("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported issue and rerun"),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
