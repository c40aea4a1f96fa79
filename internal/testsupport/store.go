package testsupport

import (
	"context"
	"testing"

	"vast/internal/config"
	"vast/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a pending run for tests using the provided store.
func NewRun(t testing.TB, store *runstore.Store, source string) *runstore.Run {
	t.Helper()

	run, err := store.NewRun(context.Background(), runstore.Run{
		SourcePath: source,
		WorkDir:    "/tmp/work",
		Strategy:   "structural",
		Threshold:  0.5,
		Interval:   1,
	})
	if err != nil {
		t.Fatalf("store.NewRun: %v", err)
	}
	return run
}
