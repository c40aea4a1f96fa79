// Package runstore persists pipeline runs and their per-stage records in
// SQLite.
//
// A Run captures the source video, detection parameters, artifact counts and
// final status of one invocation of the pipeline; stage rows record when each
// stage started, how it finished, and any error message. The CLI renders this
// history with `vast runs list` and `vast runs show`.
//
// The database is treated as a run log rather than a source of truth for
// artifacts: every stage is resumable from the files in its run directory.
// Schema changes bump schemaVersion in schema.go; users delete the database to
// adopt the new schema.
package runstore
