package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kewei-lab/tableplan/internal/action"
	"github.com/kewei-lab/tableplan/internal/exec"
	"github.com/kewei-lab/tableplan/internal/planner"
	"github.com/kewei-lab/tableplan/internal/report"
	"github.com/kewei-lab/tableplan/internal/scene"
)

// scriptedPlanner replays canned responses in order.
type scriptedPlanner struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedPlanner) Plan(_ context.Context, _ []planner.Message) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i >= len(p.responses) {
		return "Task is complete.", nil
	}
	return p.responses[i], nil
}

// fakeExecutor returns canned results and records commands.
type fakeExecutor struct {
	results  []exec.Result
	commands []string
}

func (e *fakeExecutor) Execute(_ context.Context, _ string, cmd action.Command) exec.Result {
	e.commands = append(e.commands, cmd.String())
	if len(e.commands)-1 < len(e.results) {
		return e.results[len(e.commands)-1]
	}
	return exec.Result{Status: exec.StatusExecutionSuccess, IsValid: true}
}

// fakeBus feeds the store a fresh frame on every pump so refresh loops
// finish immediately.
type fakeBus struct {
	store       *scene.Store
	frame       []byte
	completions []string
}

func (b *fakeBus) Pump() {
	if b.store != nil && b.frame != nil {
		_ = b.store.Update(b.frame)
	}
}

func (b *fakeBus) PublishCompletion(response, sceneRendering string) error {
	b.completions = append(b.completions, response+"\n\nCurrent Scene Graph: "+sceneRendering)
	return nil
}

type fakeReports struct {
	saved []report.Report
}

func (r *fakeReports) Save(rep report.Report) (string, error) {
	r.saved = append(r.saved, rep)
	return "/tmp/report.txt", nil
}

func testScene() []byte {
	return []byte(`{
		"timestamp": 1,
		"nodes": ["table", "0=T", "red_cube", "blue_cube", "lid_box(open)"],
		"edges": ["red_cube(on)table", "blue_cube(on)table", "lid_box(on)table"]
	}`)
}

func newTestAgent(t *testing.T, p planner.Planner, e Executor, opts Options) (*Agent, *fakeBus, *fakeReports) {
	t.Helper()
	store := scene.NewStore(0)
	require.NoError(t, store.Update(testScene()))

	bus := &fakeBus{store: store, frame: testScene()}
	reports := &fakeReports{}

	opts.Retry = planner.RetryPolicy{MaxRetries: 1, BaseDelaySec: 0, MaxDelaySec: 0, BackoffFactor: 1, RetryOn429: true, RetryOn500: true, RetryOnTimeout: true}
	a := New(Deps{
		Planner:   p,
		Store:     store,
		Bus:       bus,
		Validator: action.NewValidator(0),
		Executor:  e,
		Reports:   reports,
		Records:   exec.NewRecordLog(),
	}, opts)
	return a, bus, reports
}

func TestAgent_TaskCompletes(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move red_cube in lid_box",
		"The red cube is now in the box. Task complete.",
	}}
	e := &fakeExecutor{}
	a, bus, reports := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "put the red cube in the box")
	require.NoError(t, err)
	assert.Contains(t, out, "Task complete.")

	require.Len(t, e.commands, 1)
	assert.Equal(t, "move red_cube in lid_box", e.commands[0])

	require.Len(t, reports.saved, 1)
	assert.Equal(t, "completed", reports.saved[0].Status)
	assert.Equal(t, []string{"move red_cube in lid_box"}, reports.saved[0].Sequence)

	require.Len(t, bus.completions, 1)
	assert.Contains(t, bus.completions[0], "Current Scene Graph: ")
}

func TestAgent_ValidationFailureTerminatesByDefault(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move ghost_cube on table",
	}}
	e := &fakeExecutor{}
	a, _, reports := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "move the ghost cube")
	require.NoError(t, err)
	assert.Contains(t, out, "is invalid, reason:")
	assert.Empty(t, e.commands)

	require.Len(t, reports.saved, 1)
	assert.Equal(t, "failed", reports.saved[0].Status)

	// Failed task is retained for "goon".
	p.responses = append(p.responses, "Done.")
	out2, err := a.ProcessInput(context.Background(), "goon")
	require.NoError(t, err)
	assert.NotEmpty(t, out2)
}

func TestAgent_ReplanOnValidationFailure(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move ghost_cube on table",
		"move red_cube in lid_box",
		"Done.",
	}}
	e := &fakeExecutor{}
	a, _, _ := newTestAgent(t, p, e, Options{ReplanOnValidationFailure: true})

	out, err := a.ProcessInput(context.Background(), "tidy the table")
	require.NoError(t, err)
	assert.Equal(t, "Done.", out)
	assert.Equal(t, []string{"move red_cube in lid_box"}, e.commands)
}

func TestAgent_ConsecutiveValidationFailureCeiling(t *testing.T) {
	var responses []string
	for i := 0; i < 6; i++ {
		responses = append(responses, fmt.Sprintf("move ghost_%d on table", i))
	}
	p := &scriptedPlanner{responses: responses}
	e := &fakeExecutor{}
	a, _, reports := newTestAgent(t, p, e, Options{ReplanOnValidationFailure: true, MaxConsecutiveFailures: 3})

	out, err := a.ProcessInput(context.Background(), "impossible task")
	require.NoError(t, err)
	assert.Contains(t, out, "consecutive validation failures (3 times)")
	assert.Contains(t, out, "impossible to complete")

	require.Len(t, reports.saved, 1)
	assert.Equal(t, "failed", reports.saved[0].Status)
}

func TestAgent_GuardRejectionTriggersReplan(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move red_cube in lid_box",
		"move blue_cube in lid_box",
		"move red_cube in lid_box", // A-B-A bounce
		"All sorted.",
	}}
	e := &fakeExecutor{}
	a, _, _ := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "shuffle the cubes")
	require.NoError(t, err)
	assert.Equal(t, "All sorted.", out)

	// The bounced third command never reached the executor.
	assert.Equal(t, []string{"move red_cube in lid_box", "move blue_cube in lid_box"}, e.commands)
}

func TestAgent_TimeoutIsTerminal(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move red_cube in lid_box",
		"should never be asked",
	}}
	e := &fakeExecutor{results: []exec.Result{{Status: exec.StatusExecutionTimeout}}}
	a, _, _ := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "put the cube away")
	require.NoError(t, err)
	assert.Contains(t, out, "timed out waiting for completion signal")
	assert.Equal(t, 1, p.calls)
}

func TestAgent_ExecutionErrorReplans(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move red_cube in lid_box",
		"move blue_cube in lid_box",
		"Finished.",
	}}
	e := &fakeExecutor{results: []exec.Result{
		{Status: exec.StatusExecutionError, Message: "publish failed"},
		{Status: exec.StatusExecutionSuccess, IsValid: true},
	}}
	a, _, _ := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "fill the box")
	require.NoError(t, err)
	assert.Equal(t, "Finished.", out)
	assert.Len(t, e.commands, 2)
}

func TestAgent_PlannerRetryThenSuccess(t *testing.T) {
	p := &scriptedPlanner{
		errs:      []error{errors.New("API request failed with status 500: internal error")},
		responses: []string{"", "Nothing to do."},
	}
	e := &fakeExecutor{}
	a, _, _ := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "noop task")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to do.", out)
	assert.Equal(t, 2, p.calls)
}

func TestAgent_PlannerHardErrorFailsTask(t *testing.T) {
	p := &scriptedPlanner{
		errs: []error{errors.New("API key not configured")},
	}
	e := &fakeExecutor{}
	a, _, reports := newTestAgent(t, p, e, Options{})

	out, err := a.ProcessInput(context.Background(), "any task")
	require.NoError(t, err)
	assert.Contains(t, out, "Planner unavailable")
	require.Len(t, reports.saved, 1)
	assert.Equal(t, "failed", reports.saved[0].Status)
}

func TestAgent_GoonWithoutFailure(t *testing.T) {
	a, _, _ := newTestAgent(t, &scriptedPlanner{}, &fakeExecutor{}, Options{})

	out, err := a.ProcessInput(context.Background(), "goon")
	require.NoError(t, err)
	assert.Equal(t, "No failed task to retry.", out)
}

func TestAgent_MaxIterations(t *testing.T) {
	// Planner alternates between three commands forever.
	var responses []string
	for i := 0; i < 20; i++ {
		responses = append(responses,
			"move red_cube in lid_box",
			"move blue_cube in lid_box",
			"move red_cube on table",
			"move blue_cube on table",
		)
	}
	p := &scriptedPlanner{responses: responses}
	e := &fakeExecutor{}
	a, _, _ := newTestAgent(t, p, e, Options{MaxIterations: 6, ReplanOnValidationFailure: true})

	out, err := a.ProcessInput(context.Background(), "endless shuffle")
	require.NoError(t, err)
	assert.Contains(t, out, "6 planning iterations")
}

func TestAgent_RecordLogClearedAfterTask(t *testing.T) {
	p := &scriptedPlanner{responses: []string{
		"move red_cube in lid_box",
		"Done.",
	}}
	e := &fakeExecutor{}
	a, _, _ := newTestAgent(t, p, e, Options{})

	// Records appended during execution must not leak into the next
	// task, even without Postgres attached to flush them.
	a.records.Append(exec.Record{
		TaskID:  "earlier-task",
		Command: "move blue_cube on table",
		Status:  exec.StatusExecutionSuccess,
	})

	_, err := a.ProcessInput(context.Background(), "put the red cube in the box")
	require.NoError(t, err)
	assert.Empty(t, a.records.Snapshot())
}

func TestExtractBatchLabel(t *testing.T) {
	label, task := ExtractBatchLabel("config_7: stack all cubes")
	assert.Equal(t, "config_7", label)
	assert.Equal(t, "stack all cubes", task)

	label, task = ExtractBatchLabel("stack all cubes")
	assert.Empty(t, label)
	assert.Equal(t, "stack all cubes", task)
}

func TestAgent_StatusSource(t *testing.T) {
	a, _, _ := newTestAgent(t, &scriptedPlanner{}, &fakeExecutor{}, Options{})

	assert.Equal(t, "idle", a.ExecutionState())
	assert.Empty(t, a.CurrentTask())

	stats := a.SceneStats()
	assert.Equal(t, 1, stats["parse_success_count"])
}
