package transcript

import (
	"encoding/json"
	"fmt"
	"os"

	"vast/internal/align"
)

// whisperPayload is the JSON document written by Whisper and WhisperX.
type whisperPayload struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// LoadWhisperJSON reads the segments of a Whisper JSON transcript.
func LoadWhisperJSON(path string) ([]align.TimeSpan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whisper json: %w", err)
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	spans := make([]align.TimeSpan, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		spans = append(spans, align.TimeSpan{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return spans, nil
}
