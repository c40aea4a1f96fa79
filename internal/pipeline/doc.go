// Package pipeline runs a video through the scene segmentation stages and
// records each run in the run store.
//
// Stages run in order: inspect, sample, detect, export, transcribe, align,
// publish. Every stage writes its artifact under WorkDir/<stem>/ and a rerun
// over the same source picks up whatever is already on disk, so an
// interrupted run resumes instead of starting over. Transcribe, align, and
// publish are skipped when their inputs are not configured.
//
// Stage failures are classified with the services error markers: validation
// and configuration problems leave the run in review, tool and transient
// failures mark it failed.
package pipeline
