// Package deps reports whether the external tools and files a run needs are
// present: ffmpeg, ffprobe, the transcription command, and the ONNX model
// and runtime library when the embedding strategy is selected.
package deps
