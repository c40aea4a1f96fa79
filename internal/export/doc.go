// Package export cuts one clip per detected segment out of the source video.
//
// Clips are produced by stream copy through an Extractor (ffmpeg in
// production), written under a temporary ".partial" name and renamed into
// place, so a file carrying a final clip name is always complete. After every
// segment succeeds the exporter writes scene_segments.json describing the
// clips.
//
// Exports are resumable: a directory whose record already matches the
// requested segments is returned without touching ffmpeg, and a directory
// left by an interrupted run of the same plan only has its missing clips
// extracted. A file lock prevents two exporters from sharing a directory.
package export
