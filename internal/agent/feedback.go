package agent

import (
	"fmt"

	"github.com/kewei-lab/tableplan/internal/exec"
)

// withScene appends the current scene rendering to a feedback message.
func withScene(msg, sceneJSON string) string {
	if sceneJSON == "" {
		return msg + "\n\n(Scene graph not available)"
	}
	return msg + "\n\nCurrent scene graph:\n" + sceneJSON
}

// BuildFeedback turns an execution result into the user-role message
// the planner sees on the next turn.
func BuildFeedback(res exec.Result, command, sceneJSON string) string {
	switch res.Status {
	case exec.StatusExecutionSuccess:
		return withScene(fmt.Sprintf("The previous action '%s' was executed successfully.", command), sceneJSON)
	case exec.StatusValidationFailed:
		return withScene(fmt.Sprintf("The action '%s' is invalid, reason: %s", command, res.ErrorReason), sceneJSON)
	case exec.StatusTaskFailed:
		return withScene(fmt.Sprintf("The action '%s' failed, reason: %s", command, res.ErrorReason), sceneJSON)
	case exec.StatusExecutionTimeout:
		return withScene(fmt.Sprintf("The action '%s' timed out waiting for completion signal.", command), sceneJSON)
	default:
		return withScene(fmt.Sprintf("The action '%s' encountered an error: %s", command, res.Message), sceneJSON)
	}
}

// GuardFeedback wraps a repetition-guard rejection the same way.
func GuardFeedback(reason, sceneJSON string) string {
	return withScene(reason, sceneJSON)
}
