// Package preflight provides readiness checks for the tools, files, and
// services a run depends on.
//
// These checks run in two contexts:
//   - The pipeline manager calls RunAll before starting a run. If any check
//     fails, the run is rejected before any frames are sampled.
//   - The CLI "vast status" command renders the same results.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
