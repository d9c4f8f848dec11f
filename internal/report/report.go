// Package report writes a plain-text summary of each finished task.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Step is one planner turn as it appears in the report.
type Step struct {
	Index    int
	Command  string
	Status   string
	Detail   string
	Response string
}

// Report is everything the writer needs about one finished task.
type Report struct {
	TaskID        string
	Task          string
	Label         string
	Model         string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	FinalResponse string
	FailureReason string
	Sequence      []string
	Steps         []Step
	FinalScene    string
}

// Writer saves reports under a directory, one file per task.
type Writer struct {
	Dir string
}

// NewWriter creates a report writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Save writes the report and returns the file path.
func (w *Writer) Save(r Report) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := r.EndTime.Format("20060102_150405") + "_agent_report.txt"
	path := filepath.Join(w.Dir, name)

	var b strings.Builder
	b.WriteString("==== Tabletop Agent Report ====\n\n")

	b.WriteString("Task Information\n")
	b.WriteString("----------------\n")
	fmt.Fprintf(&b, "Task ID:    %s\n", r.TaskID)
	if r.Label != "" {
		fmt.Fprintf(&b, "Label:      %s\n", r.Label)
	}
	fmt.Fprintf(&b, "Task:       %s\n", r.Task)
	if r.Model != "" {
		fmt.Fprintf(&b, "Model:      %s\n", r.Model)
	}
	fmt.Fprintf(&b, "Started:    %s\n", r.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished:   %s\n", r.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:   %s\n", r.EndTime.Sub(r.StartTime).Round(time.Millisecond))
	fmt.Fprintf(&b, "Status:     %s\n", r.Status)
	b.WriteString("\n")

	b.WriteString("Execution Sequence\n")
	b.WriteString("------------------\n")
	if len(r.Sequence) == 0 {
		b.WriteString("(no actions executed)\n")
	}
	for i, cmd := range r.Sequence {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cmd)
	}
	b.WriteString("\n")

	b.WriteString("Detailed Records\n")
	b.WriteString("----------------\n")
	if len(r.Steps) == 0 {
		b.WriteString("(no planner turns recorded)\n")
	}
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "Step %d:\n", s.Index)
		if s.Command != "" {
			fmt.Fprintf(&b, "  command: %s\n", s.Command)
		}
		if s.Status != "" {
			fmt.Fprintf(&b, "  status:  %s\n", s.Status)
		}
		if s.Detail != "" {
			fmt.Fprintf(&b, "  detail:  %s\n", s.Detail)
		}
	}
	b.WriteString("\n")

	if r.FailureReason != "" {
		b.WriteString("Failure Reason\n")
		b.WriteString("--------------\n")
		b.WriteString(r.FailureReason + "\n\n")
	}

	b.WriteString("Final Response\n")
	b.WriteString("--------------\n")
	if r.FinalResponse != "" {
		b.WriteString(r.FinalResponse + "\n")
	} else {
		b.WriteString("(none)\n")
	}

	if r.FinalScene != "" {
		b.WriteString("\nFinal Scene Graph\n")
		b.WriteString("-----------------\n")
		b.WriteString(r.FinalScene + "\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
