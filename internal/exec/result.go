// Package exec coordinates the publish / wait-for-signal / settle /
// diff cycle that carries one validated command through the simulator.
package exec

import (
	"github.com/kewei-lab/tableplan/internal/action"
	"github.com/kewei-lab/tableplan/internal/scene"
)

// Status is the outcome classification carried back to the planning loop.
type Status string

const (
	StatusExecutionSuccess Status = "execution_success"
	StatusValidationFailed Status = "validation_failed"
	StatusTaskFailed       Status = "task_failed"
	StatusExecutionTimeout Status = "execution_timeout"
	StatusExecutionError   Status = "execution_error"
)

// ChangeAnalysis summarizes what moved between two scene snapshots.
type ChangeAnalysis struct {
	EdgesAdded     []string `json:"edges_added"`
	EdgesRemoved   []string `json:"edges_removed"`
	HasChanges     bool     `json:"has_changes"`
	IntendedAction string   `json:"intended_action,omitempty"`
}

// Result is the structured envelope every execution attempt produces.
// Failures travel inside it; Execute never returns a Go error.
type Result struct {
	Status              Status            `json:"status"`
	Message             string            `json:"message,omitempty"`
	IsValid             bool              `json:"is_valid"`
	ErrorReason         string            `json:"error_reason,omitempty"`
	ValidationDetails   map[string]bool   `json:"validation_details,omitempty"`
	Suggestion          string            `json:"suggestion,omitempty"`
	IntendedAction      string            `json:"intended_action,omitempty"`
	SceneGraph          *scene.Graph      `json:"scene_graph,omitempty"`
	CurrentSceneGraph   *scene.Graph      `json:"current_scene_graph,omitempty"`
	ChangeAnalysis      *ChangeAnalysis   `json:"change_analysis,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures,omitempty"`
	ReasonKind          action.ReasonKind `json:"reason_kind,omitempty"`
}

// Scene returns whichever scene snapshot the result carries.
func (r *Result) Scene() *scene.Graph {
	if r.CurrentSceneGraph != nil {
		return r.CurrentSceneGraph
	}
	return r.SceneGraph
}

// ValidationFailure wraps a validator verdict into a result envelope.
func ValidationFailure(vr action.Result, current *scene.Graph, consecutiveFailures int) Result {
	return Result{
		Status:              StatusValidationFailed,
		IsValid:             false,
		ErrorReason:         vr.Reason,
		ValidationDetails:   vr.Details,
		Suggestion:          vr.Suggestion,
		CurrentSceneGraph:   current,
		ConsecutiveFailures: consecutiveFailures,
		ReasonKind:          vr.Kind,
	}
}

// TaskFailure builds the terminal envelope for the consecutive-failure
// ceiling.
func TaskFailure(reason, suggestion string, current *scene.Graph, failures int) Result {
	return Result{
		Status:              StatusTaskFailed,
		IsValid:             false,
		ErrorReason:         reason,
		Suggestion:          suggestion,
		CurrentSceneGraph:   current,
		ConsecutiveFailures: failures,
	}
}
