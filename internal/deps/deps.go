package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement names an external binary or file a run depends on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries resolves each requirement's command on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := newStatus(req)
		switch {
		case status.Command == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(status.Command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// CheckFiles verifies each requirement's Command names a readable regular
// file. It is used for model weights and shared libraries.
func CheckFiles(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := newStatus(req)
		if status.Command == "" {
			status.Detail = "path not configured"
			results = append(results, status)
			continue
		}
		info, err := os.Stat(status.Command)
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("%s not found", status.Command)
		case info.IsDir():
			status.Detail = fmt.Sprintf("%s is a directory", status.Command)
		default:
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

func newStatus(req Requirement) Status {
	return Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
}
