package transcript

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"vast/internal/align"
)

// ParseSRT reads SRT cues. Blocks without a valid timing line are skipped;
// the cue number line is optional. Millisecond separators may be ',' or '.'.
func ParseSRT(r io.Reader) ([]align.TimeSpan, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		spans []align.TimeSpan
		block []string
	)
	flush := func() {
		if span, ok := parseBlock(block); ok {
			spans = append(spans, span)
		}
		block = block[:0]
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		line = strings.TrimPrefix(line, "\ufeff")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()
	return spans, nil
}

// ParseSRTFile parses the SRT file at path.
func ParseSRTFile(path string) ([]align.TimeSpan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	defer f.Close()
	return ParseSRT(f)
}

func parseBlock(lines []string) (align.TimeSpan, bool) {
	timing := -1
	for i, line := range lines {
		if strings.Contains(line, "-->") {
			timing = i
			break
		}
		if i >= 1 {
			break
		}
	}
	if timing < 0 {
		return align.TimeSpan{}, false
	}
	parts := strings.SplitN(lines[timing], "-->", 2)
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return align.TimeSpan{}, false
	}
	// Cue settings may follow the end timestamp.
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return align.TimeSpan{}, false
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return align.TimeSpan{}, false
	}
	text := strings.TrimSpace(strings.Join(lines[timing+1:], " "))
	return align.TimeSpan{Start: start, End: end, Text: text}, true
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm, or MM:SS.mmm.
func parseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ",", ".")
	clock, frac, _ := strings.Cut(value, ".")
	hms := strings.Split(clock, ":")
	if len(hms) == 2 {
		hms = append([]string{"0"}, hms...)
	}
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	if errH != nil || errM != nil || errS != nil || hours < 0 || minutes < 0 || seconds < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	total := float64(hours*3600 + minutes*60 + seconds)
	if frac != "" {
		millis, err := strconv.Atoi(frac)
		if err != nil || millis < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		scale := 1.0
		for range frac {
			scale *= 10
		}
		total += float64(millis) / scale
	}
	return total, nil
}
