// Package agent runs the planning loop: ask the planner for the next
// action, vet it, execute it through the simulator, and feed the
// outcome back until the task is done or dead.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kewei-lab/tableplan/internal/action"
	"github.com/kewei-lab/tableplan/internal/events"
	"github.com/kewei-lab/tableplan/internal/exec"
	"github.com/kewei-lab/tableplan/internal/planner"
	"github.com/kewei-lab/tableplan/internal/report"
	"github.com/kewei-lab/tableplan/internal/scene"
)

// Executor carries one validated command through the simulator.
type Executor interface {
	Execute(ctx context.Context, taskID string, cmd action.Command) exec.Result
}

// CompletionBus is the slice of the message bus the agent itself needs.
type CompletionBus interface {
	Pump()
	PublishCompletion(response, sceneRendering string) error
}

// ReportSink persists finished-task reports.
type ReportSink interface {
	Save(r report.Report) (string, error)
}

// Options tune the planning loop.
type Options struct {
	MaxIterations             int
	MaxConsecutiveFailures    int
	RepeatLimit               int
	ReplanOnValidationFailure bool
	Retry                     planner.RetryPolicy
	Model                     string
}

// Deps are the collaborators the agent drives.
type Deps struct {
	Planner   planner.Planner
	Store     *scene.Store
	Bus       CompletionBus
	Validator *action.Validator
	Executor  Executor
	Reports   ReportSink
	Records   *exec.RecordLog
}

// Agent owns one planning loop and its state between tasks.
type Agent struct {
	planner   planner.Planner
	store     *scene.Store
	bus       CompletionBus
	validator *action.Validator
	executor  Executor
	reports   ReportSink
	records   *exec.RecordLog
	opts      Options

	mu             sync.Mutex
	state          string
	currentTask    string
	lastFailedTask string
	lastLabel      string
}

// New wires an agent; zero option fields select defaults.
func New(deps Deps, opts Options) *Agent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 30
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 5
	}
	if opts.RepeatLimit <= 0 {
		opts.RepeatLimit = DefaultRepeatLimit
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = planner.DefaultRetryPolicy()
	}
	return &Agent{
		planner:   deps.Planner,
		store:     deps.Store,
		bus:       deps.Bus,
		validator: deps.Validator,
		executor:  deps.Executor,
		reports:   deps.Reports,
		records:   deps.Records,
		opts:      opts,
		state:     "idle",
	}
}

// TaskResult is the outcome of one task run.
type TaskResult struct {
	Session       *Session
	Completed     bool
	FinalResponse string
	FailureReason string
}

var batchLabelRe = regexp.MustCompile(`^(config_\d+)\s*:\s*(.*)$`)

// ExtractBatchLabel splits a batch-harness task line "config_N: <text>"
// into its label and task text.
func ExtractBatchLabel(input string) (label, task string) {
	if m := batchLabelRe.FindStringSubmatch(strings.TrimSpace(input)); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return "", strings.TrimSpace(input)
}

// SceneStats implements the status endpoint's scene section.
func (a *Agent) SceneStats() map[string]interface{} {
	if a.store == nil {
		return nil
	}
	return a.store.Stats()
}

// ExecutionState reports what the agent is doing right now.
func (a *Agent) ExecutionState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CurrentTask returns the task being worked, if any.
func (a *Agent) CurrentTask() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTask
}

func (a *Agent) setState(state, task string) {
	a.mu.Lock()
	a.state = state
	a.currentTask = task
	a.mu.Unlock()
}

// ProcessInput handles one task line from the bus or the terminal.
// "goon" retries the last failed task. The returned string is the
// final response published to the completion topic.
func (a *Agent) ProcessInput(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)

	var label, task string
	if strings.EqualFold(input, "goon") {
		a.mu.Lock()
		task, label = a.lastFailedTask, a.lastLabel
		a.mu.Unlock()
		if task == "" {
			return "No failed task to retry.", nil
		}
		events.Emit("info", "task.retried", task, nil)
	} else {
		label, task = ExtractBatchLabel(input)
		if task == "" {
			return "", fmt.Errorf("empty task")
		}
	}

	a.setState("planning", task)
	defer a.setState("idle", "")

	events.Emit("info", "task.started", task, map[string]interface{}{
		"label": label,
	})

	res := a.runTask(ctx, task, label)

	a.mu.Lock()
	if res.Completed {
		a.lastFailedTask = ""
		a.lastLabel = ""
	} else {
		a.lastFailedTask = task
		a.lastLabel = label
	}
	a.mu.Unlock()

	a.saveReport(res)
	a.persistRecords()

	response := res.FinalResponse
	if response == "" {
		response = res.FailureReason
	}
	if a.bus != nil {
		if err := a.bus.PublishCompletion(response, a.sceneJSON()); err != nil {
			events.Emit("error", "bus.publish_error", err.Error(), nil)
		}
	}

	if res.Completed {
		events.Emit("info", "task.completed", task, map[string]interface{}{
			"steps": len(res.Session.Steps),
		})
	} else {
		events.Emit("warn", "task.failed", task, map[string]interface{}{
			"reason": res.FailureReason,
		})
	}

	return response, nil
}

// sceneJSON returns the current scene graph as JSON, or empty when the
// store has nothing yet.
func (a *Agent) sceneJSON() string {
	if a.store == nil {
		return ""
	}
	rendering := a.store.Render()
	if rest, ok := strings.CutPrefix(rendering, "Current scene graph: "); ok {
		return rest
	}
	return ""
}

func (a *Agent) runTask(ctx context.Context, task, label string) *TaskResult {
	session := NewSession(task, label)
	guard := NewRepetitionGuard(a.opts.RepeatLimit)
	res := &TaskResult{Session: session}

	// Pull in any frames queued while idle so the planner starts from
	// the live scene.
	if a.bus != nil {
		a.bus.Pump()
	}
	if a.store != nil {
		if a.store.ForceRefresh(ctx, a.busPump()) {
			events.Emit("info", "scene.refreshed", "", nil)
		}
	}

	session.AddSystem(systemPrompt)
	session.AddUser(task + "\n\n" + a.sceneContext())

	for iter := 0; iter < a.opts.MaxIterations; iter++ {
		response, err := a.planWithRetry(ctx, session.Messages)
		if err != nil {
			if planner.IsTimeoutError(err) {
				res.FailureReason = "Processing timed out after multiple retries. Please simplify your request and try again."
			} else {
				res.FailureReason = fmt.Sprintf("Planner unavailable: %v", err)
			}
			return res
		}
		session.AddAssistant(response)

		cmd, ok := action.Parse(response)
		if !ok {
			// No action means the planner considers the task done.
			events.Emit("info", "plan.no_action", "", map[string]interface{}{
				"iteration": iter + 1,
			})
			session.RecordStep(Step{Response: response})
			res.Completed = true
			res.FinalResponse = response
			return res
		}
		cmdStr := cmd.String()

		if reason, ok := guard.Check(cmdStr); !ok {
			events.Emit("warn", "action.repeated", cmdStr, nil)
			feedback := GuardFeedback(reason, a.sceneJSON())
			session.AddUser(feedback)
			session.RecordStep(Step{Response: response, Command: cmdStr, Status: exec.StatusValidationFailed, Feedback: feedback})
			continue
		}

		graph, _ := a.store.Latest()
		verdict := a.validator.Validate(cmd, graph)
		if !verdict.Valid {
			session.ConsecutiveValidationFailures++
			events.Emit("warn", "action.rejected", cmdStr, map[string]interface{}{
				"reason": verdict.Reason,
				"count":  session.ConsecutiveValidationFailures,
			})

			if session.ConsecutiveValidationFailures >= a.opts.MaxConsecutiveFailures {
				reason := fmt.Sprintf(
					"Task terminated due to consecutive validation failures (%d times). The task appears to be impossible to complete.",
					a.opts.MaxConsecutiveFailures)
				failure := exec.TaskFailure(reason,
					"Stop this task as it cannot be completed with current scene constraints. Please try a different approach or confirm if the goal is achievable.",
					graph, session.ConsecutiveValidationFailures)
				session.RecordStep(Step{Response: response, Command: cmdStr, Status: exec.StatusTaskFailed, Feedback: reason})
				res.FailureReason = BuildFeedback(failure, cmdStr, a.sceneJSON())
				return res
			}

			vres := exec.ValidationFailure(verdict, graph, session.ConsecutiveValidationFailures)
			feedback := BuildFeedback(vres, cmdStr, a.sceneJSON())
			session.RecordStep(Step{Response: response, Command: cmdStr, Status: exec.StatusValidationFailed, Feedback: feedback})

			if !a.opts.ReplanOnValidationFailure {
				res.FailureReason = feedback
				return res
			}
			session.AddUser(feedback)
			continue
		}
		session.ConsecutiveValidationFailures = 0
		events.Emit("info", "action.validated", cmdStr, nil)

		a.setState("executing", task)
		result := a.executor.Execute(ctx, session.ID, cmd)
		a.setState("planning", task)

		feedback := BuildFeedback(result, cmdStr, a.sceneJSON())
		session.RecordStep(Step{Response: response, Command: cmdStr, Status: result.Status, Feedback: feedback})

		switch result.Status {
		case exec.StatusExecutionSuccess:
			events.Emit("info", "action.completed", cmdStr, nil)
			session.AddUser(feedback)
		case exec.StatusExecutionTimeout:
			events.Emit("error", "action.timeout", cmdStr, nil)
			res.FailureReason = feedback
			return res
		default:
			events.Emit("error", "action.error", cmdStr, map[string]interface{}{
				"message": result.Message,
			})
			session.AddUser(feedback)
		}
	}

	res.FailureReason = fmt.Sprintf("Task stopped after %d planning iterations without completion.", a.opts.MaxIterations)
	return res
}

// sceneContext renders the scene for the opening user message.
func (a *Agent) sceneContext() string {
	if a.store == nil {
		return scene.NotAvailableMessage
	}
	return a.store.Render()
}

func (a *Agent) busPump() func() {
	if a.bus == nil {
		return func() {}
	}
	return a.bus.Pump
}

// planWithRetry calls the planner, backing off on transient failures
// per the retry policy.
func (a *Agent) planWithRetry(ctx context.Context, messages []planner.Message) (string, error) {
	events.Emit("info", "plan.requested", "", map[string]interface{}{
		"messages": len(messages),
	})

	var lastErr error
	for attempt := 0; attempt <= a.opts.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(a.opts.Retry.DelaySec(attempt-1)) * time.Second
			if planner.IsRateLimitError(lastErr) {
				if suggested := planner.ExtractRetryDelay(lastErr); time.Duration(suggested)*time.Second > delay {
					delay = time.Duration(suggested) * time.Second
				}
			}
			events.Emit("warn", "plan.retry", lastErr.Error(), map[string]interface{}{
				"attempt":   attempt,
				"delay_sec": int(delay / time.Second),
			})
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		response, err := a.planner.Plan(ctx, messages)
		if err == nil {
			events.Emit("info", "plan.completed", "", map[string]interface{}{
				"length": len(response),
			})
			return response, nil
		}
		lastErr = err

		retriable := (a.opts.Retry.RetryOn429 && planner.IsRateLimitError(err)) ||
			(a.opts.Retry.RetryOn500 && planner.IsServerError(err)) ||
			(a.opts.Retry.RetryOnTimeout && planner.IsTimeoutError(err))
		if !retriable {
			return "", err
		}
	}
	return "", fmt.Errorf("planner retries exhausted: %w", lastErr)
}

func (a *Agent) saveReport(res *TaskResult) {
	if a.reports == nil {
		return
	}

	status := "completed"
	if !res.Completed {
		status = "failed"
	}

	rep := report.Report{
		TaskID:        res.Session.ID,
		Task:          res.Session.Task,
		Label:         res.Session.Label,
		Model:         a.opts.Model,
		StartTime:     res.Session.StartTime,
		EndTime:       time.Now(),
		Status:        status,
		FinalResponse: res.FinalResponse,
		FailureReason: res.FailureReason,
		Sequence:      res.Session.SuccessfulCommands(),
		FinalScene:    a.sceneJSON(),
	}
	for _, s := range res.Session.Steps {
		rep.Steps = append(rep.Steps, report.Step{
			Index:    s.Index,
			Command:  s.Command,
			Status:   string(s.Status),
			Detail:   s.Feedback,
			Response: s.Response,
		})
	}

	path, err := a.reports.Save(rep)
	if err != nil {
		events.Emit("error", "system.error", "report save failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	events.Emit("info", "report.saved", path, nil)
}

// persistRecords flushes this run's execution records to Postgres when
// it is configured, then clears the log so the next task starts empty.
// Failures are logged once via the event system.
func (a *Agent) persistRecords() {
	if a.records == nil {
		return
	}
	defer a.records.Reset()

	pg := events.GetPostgresClient()
	if pg == nil {
		return
	}
	for _, rec := range a.records.Snapshot() {
		err := pg.AppendRecord(rec.TaskID, rec.Command, string(rec.Status),
			rec.StartTime, rec.EndTime, rec.EdgesAdded, rec.EdgesRemoved, rec.ErrorReason)
		if err != nil {
			events.Emit("error", "system.error", "record persist failed", map[string]interface{}{
				"error": err.Error(),
			})
			break
		}
	}
}
