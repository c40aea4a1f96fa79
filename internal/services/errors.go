package services

import (
	"errors"
	"fmt"
	"strings"

	"vast/internal/runstore"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the run status the pipeline manager
// should persist after the stage fails. Validation, configuration and
// missing-input failures need an operator; everything else may be retried.
func FailureStatus(err error) runstore.Status {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return runstore.StatusReview
	default:
		return runstore.StatusFailed
	}
}

// Details summarizes an error for persistence in the run store.
type Details struct {
	Kind    string
	Message string
}

// Describe classifies err by marker and returns the message without the
// marker prefix.
func Describe(err error) Details {
	if err == nil {
		return Details{}
	}
	msg := strings.TrimSpace(err.Error())
	for _, m := range []struct {
		marker error
		kind   string
	}{
		{ErrValidation, "validation"},
		{ErrConfiguration, "configuration"},
		{ErrNotFound, "not_found"},
		{ErrExternalTool, "external_tool"},
		{ErrTimeout, "timeout"},
		{ErrTransient, "transient"},
	} {
		if errors.Is(err, m.marker) {
			return Details{
				Kind:    m.kind,
				Message: strings.TrimSpace(strings.TrimPrefix(msg, m.marker.Error()+":")),
			}
		}
	}
	return Details{Kind: "unknown", Message: msg}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
