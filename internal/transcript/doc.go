// Package transcript produces time-stamped text spans for a video.
//
// FileProvider reads an existing transcript (SRT, or Whisper/WhisperX JSON).
// WhisperTranscriber shells out to a Whisper command line tool, which writes
// <stem>.srt next to the run's other artifacts, and parses the result. Both
// implement Provider so the pipeline does not care where spans come from.
package transcript
