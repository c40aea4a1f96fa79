package pipeline

import (
	"path/filepath"

	"vast/internal/frames"
)

const (
	segmentsFile     = "segments.json"
	detectParamsFile = ".detect_params.json"
	sectionsFile     = "sections.json"
	framesDirName    = "frames"
	clipsDirName     = "clips"
	transcriptDir    = "transcript"
)

// Layout names the artifacts of one run directory.
type Layout struct {
	Root          string
	FramesDir     string
	SegmentsPath  string
	ClipsDir      string
	TranscriptDir string
	SectionsPath  string
}

// LayoutFor returns the run directory for source under workDir.
func LayoutFor(workDir, source string) Layout {
	root := filepath.Join(workDir, frames.Stem(source))
	return Layout{
		Root:          root,
		FramesDir:     filepath.Join(root, framesDirName),
		SegmentsPath:  filepath.Join(root, segmentsFile),
		ClipsDir:      filepath.Join(root, clipsDirName),
		TranscriptDir: filepath.Join(root, transcriptDir),
		SectionsPath:  filepath.Join(root, sectionsFile),
	}
}

func (l Layout) detectParamsPath() string {
	return filepath.Join(l.Root, detectParamsFile)
}

// rel returns path relative to the run root, or path itself when it lies
// outside.
func (l Layout) rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return path
	}
	return rel
}
