package runstore

import "time"

// Status represents the lifecycle state of a run or of one of its stages.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusReview    Status = "review"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusSkipped,
	StatusFailed,
	StatusReview,
}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string to a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status ends a run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusReview:
		return true
	default:
		return false
	}
}

// Run is one pipeline invocation over a source video.
type Run struct {
	ID           string
	SourcePath   string
	WorkDir      string
	Strategy     string
	Threshold    float64
	Interval     float64
	Status       Status
	CurrentStage string
	ErrorKind    string
	ErrorMessage string
	FrameCount   int
	SegmentCount int
	ClipCount    int
	SectionCount int
	DroppedSpans int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// StageRecord is the outcome of one stage within a run.
type StageRecord struct {
	RunID      string
	Stage      string
	Status     Status
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration returns the elapsed stage time, or zero while the stage is running.
func (r StageRecord) Duration() time.Duration {
	if r.FinishedAt == nil || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
