package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/kewei-lab/tableplan/internal/exec"
	"github.com/kewei-lab/tableplan/internal/planner"
)

// Step is one planner turn: the raw response, the command pulled out
// of it (if any), and what happened to it.
type Step struct {
	Index    int         `json:"index"`
	Response string      `json:"response"`
	Command  string      `json:"command,omitempty"`
	Status   exec.Status `json:"status,omitempty"`
	Feedback string      `json:"feedback,omitempty"`
}

// Session is the state of one task run.
type Session struct {
	ID        string
	Task      string
	Label     string
	StartTime time.Time

	Messages []planner.Message
	Steps    []Step

	ConsecutiveValidationFailures int
}

// NewSession starts a session for a task. label is the batch tag the
// task arrived under, if any.
func NewSession(task, label string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Task:      task,
		Label:     label,
		StartTime: time.Now(),
	}
}

// AddSystem appends the system prompt.
func (s *Session) AddSystem(content string) {
	s.Messages = append(s.Messages, planner.Message{Role: "system", Content: content})
}

// AddUser appends a user-role message.
func (s *Session) AddUser(content string) {
	s.Messages = append(s.Messages, planner.Message{Role: "user", Content: content})
}

// AddAssistant appends a planner response.
func (s *Session) AddAssistant(content string) {
	s.Messages = append(s.Messages, planner.Message{Role: "assistant", Content: content})
}

// RecordStep appends a step record.
func (s *Session) RecordStep(step Step) {
	step.Index = len(s.Steps) + 1
	s.Steps = append(s.Steps, step)
}

// SuccessfulCommands returns the commands that executed successfully,
// in order.
func (s *Session) SuccessfulCommands() []string {
	var out []string
	for _, st := range s.Steps {
		if st.Status == exec.StatusExecutionSuccess {
			out = append(out, st.Command)
		}
	}
	return out
}
