package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kewei-lab/tableplan/internal/exec"
)

func TestBuildFeedback_Success(t *testing.T) {
	got := BuildFeedback(exec.Result{Status: exec.StatusExecutionSuccess}, "move red_cube on table", `{"nodes": []}`)
	assert.Equal(t, "The previous action 'move red_cube on table' was executed successfully.\n\nCurrent scene graph:\n{\"nodes\": []}", got)
}

func TestBuildFeedback_ValidationFailed(t *testing.T) {
	res := exec.Result{Status: exec.StatusValidationFailed, ErrorReason: "Object 'red_cube' does not exist"}
	got := BuildFeedback(res, "move red_cube on table", "")
	assert.Equal(t, "The action 'move red_cube on table' is invalid, reason: Object 'red_cube' does not exist\n\n(Scene graph not available)", got)
}

func TestBuildFeedback_TaskFailed(t *testing.T) {
	res := exec.Result{Status: exec.StatusTaskFailed, ErrorReason: "impossible"}
	got := BuildFeedback(res, "open table", `{}`)
	assert.Contains(t, got, "The action 'open table' failed, reason: impossible")
}

func TestBuildFeedback_Timeout(t *testing.T) {
	res := exec.Result{Status: exec.StatusExecutionTimeout}
	got := BuildFeedback(res, "move red_cube on table", `{}`)
	assert.Contains(t, got, "The action 'move red_cube on table' timed out waiting for completion signal.")
}

func TestBuildFeedback_Error(t *testing.T) {
	res := exec.Result{Status: exec.StatusExecutionError, Message: "publish failed"}
	got := BuildFeedback(res, "move red_cube on table", `{}`)
	assert.Contains(t, got, "The action 'move red_cube on table' encountered an error: publish failed")
}
