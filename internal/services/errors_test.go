package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vast/internal/runstore"
	"vast/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "export", "extract", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"export", "extract", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureStatusMapping(t *testing.T) {
	validationErr := services.Wrap(services.ErrValidation, "detect", "prepare", "invalid", nil)
	if status := services.FailureStatus(validationErr); status != runstore.StatusReview {
		t.Fatalf("expected review for validation error, got %s", status)
	}

	transientErr := services.Wrap(services.ErrTransient, "export", "copy", "copy failed", errors.New("io"))
	if status := services.FailureStatus(transientErr); status != runstore.StatusFailed {
		t.Fatalf("expected failed for transient error, got %s", status)
	}

	if status := services.FailureStatus(nil); status != runstore.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}

func TestDescribeStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, "sample", "probe", "source missing", nil)
	details := services.Describe(err)
	if details.Kind != "not_found" {
		t.Fatalf("kind = %q, want not_found", details.Kind)
	}
	if details.Message != "sample: probe: source missing" {
		t.Fatalf("message = %q", details.Message)
	}
	if got := services.Describe(nil); got.Kind != "" || got.Message != "" {
		t.Fatalf("expected empty details for nil, got %+v", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithStage(ctx, "detect")
	ctx = services.WithRequestID(ctx, "")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("run id = %q, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "detect" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected empty request id to be ignored")
	}
}
