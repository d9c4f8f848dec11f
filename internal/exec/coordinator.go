package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kewei-lab/tableplan/internal/action"
	"github.com/kewei-lab/tableplan/internal/events"
	"github.com/kewei-lab/tableplan/internal/scene"
)

// State tracks where the coordinator is in its execution cycle.
type State string

const (
	StateIdle       State = "idle"
	StatePublished  State = "published"
	StateWaiting    State = "waiting_for_signal"
	StateCompleted  State = "completed"
	StateTimedOut   State = "timed_out"
	StateErrored    State = "error"
)

const (
	// DefaultMaxWait bounds the wait for the simulator's completion signal.
	DefaultMaxWait = 120 * time.Second

	// DefaultSettleDelay is how long the scene is given to settle after
	// the completion signal before the final snapshot.
	DefaultSettleDelay = time.Second

	// DefaultTick is the poll-and-pump interval while waiting.
	DefaultTick = 50 * time.Millisecond
)

// Bus is the message-bus surface the coordinator drives. The concrete
// implementation queues inbound deliveries; Pump drains them onto the
// calling goroutine so the scene store only ever sees one writer.
type Bus interface {
	PublishInstruction(cmd string) error
	PublishInitialScene(raw []byte) error
	Pump()
	TriggerSeen() bool
	ResetTrigger()
}

// Coordinator owns the execution cycle for one agent: publish the
// command and the pre-action snapshot, pump the bus until the
// completion signal or the deadline, settle, re-snapshot, diff.
type Coordinator struct {
	bus   Bus
	store *scene.Store
	log   *RecordLog

	maxWait time.Duration
	settle  time.Duration
	tick    time.Duration

	mu    sync.Mutex
	state State
}

// NewCoordinator wires a coordinator; zero durations select defaults.
func NewCoordinator(bus Bus, store *scene.Store, log *RecordLog, maxWait, settle, tick time.Duration) *Coordinator {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	if log == nil {
		log = NewRecordLog()
	}
	return &Coordinator{
		bus:     bus,
		store:   store,
		log:     log,
		maxWait: maxWait,
		settle:  settle,
		tick:    tick,
		state:   StateIdle,
	}
}

// State returns the coordinator's current cycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Log returns the execution record log.
func (c *Coordinator) Log() *RecordLog {
	return c.log
}

// Execute runs one command through the simulator. All failure modes
// come back inside the Result; the returned value is always usable as
// planner feedback.
func (c *Coordinator) Execute(ctx context.Context, taskID string, cmd action.Command) Result {
	start := time.Now()
	wire := action.StripDirective(cmd.String())

	initialRaw, initialGraph, ok := c.store.LatestRaw()
	if !ok {
		res := Result{
			Status:  StatusExecutionError,
			Message: "Error during action execution: " + scene.NotAvailableMessage,
		}
		c.finish(taskID, wire, start, res)
		return res
	}

	c.bus.ResetTrigger()
	if err := c.bus.PublishInstruction(wire); err != nil {
		res := Result{
			Status:            StatusExecutionError,
			Message:           fmt.Sprintf("Error during action execution: publish instruction: %v", err),
			CurrentSceneGraph: initialGraph,
		}
		c.finish(taskID, wire, start, res)
		return res
	}
	if err := c.bus.PublishInitialScene(initialRaw); err != nil {
		res := Result{
			Status:            StatusExecutionError,
			Message:           fmt.Sprintf("Error during action execution: publish initial scene: %v", err),
			CurrentSceneGraph: initialGraph,
		}
		c.finish(taskID, wire, start, res)
		return res
	}
	c.setState(StatePublished)

	res := c.wait(ctx, wire, initialGraph)
	c.finish(taskID, wire, start, res)
	return res
}

func (c *Coordinator) wait(ctx context.Context, wire string, initial *scene.Graph) Result {
	c.setState(StateWaiting)

	deadline := time.NewTimer(c.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		c.bus.Pump()

		if c.bus.TriggerSeen() {
			return c.complete(ctx, wire, initial)
		}

		select {
		case <-ctx.Done():
			current, _ := c.store.Latest()
			return Result{
				Status:            StatusExecutionError,
				Message:           fmt.Sprintf("Error during action execution: %v", ctx.Err()),
				CurrentSceneGraph: current,
			}
		case <-deadline.C:
			current, _ := c.store.Latest()
			return Result{
				Status:            StatusExecutionTimeout,
				Message:           "Timed out waiting for completion signal (value=true)",
				CurrentSceneGraph: current,
			}
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) complete(ctx context.Context, wire string, initial *scene.Graph) Result {
	// Give the simulator time to settle before the final snapshot.
	select {
	case <-ctx.Done():
	case <-time.After(c.settle):
	}
	c.bus.Pump()
	c.store.ForceRefresh(ctx, c.bus.Pump)
	events.Emit("info", "scene.stable", "", nil)

	final, ok := c.store.Latest()
	if !ok {
		final = initial
	}

	added, removed := scene.Diff(initial, final)
	return Result{
		Status:         StatusExecutionSuccess,
		IsValid:        true,
		Message:        "Action validated and executed successfully. Environment updated and scene graph stabilized.",
		IntendedAction: wire,
		SceneGraph:     final,
		ChangeAnalysis: &ChangeAnalysis{
			EdgesAdded:     added,
			EdgesRemoved:   removed,
			HasChanges:     len(added) > 0 || len(removed) > 0,
			IntendedAction: wire,
		},
	}
}

func (c *Coordinator) finish(taskID, wire string, start time.Time, res Result) {
	switch res.Status {
	case StatusExecutionSuccess:
		c.setState(StateCompleted)
	case StatusExecutionTimeout:
		c.setState(StateTimedOut)
	default:
		c.setState(StateErrored)
	}

	rec := Record{
		TaskID:      taskID,
		Command:     wire,
		Status:      res.Status,
		StartTime:   start,
		EndTime:     time.Now(),
		ErrorReason: res.ErrorReason,
	}
	if res.ErrorReason == "" && res.Status != StatusExecutionSuccess {
		rec.ErrorReason = res.Message
	}
	if res.ChangeAnalysis != nil {
		rec.EdgesAdded = res.ChangeAnalysis.EdgesAdded
		rec.EdgesRemoved = res.ChangeAnalysis.EdgesRemoved
	}
	c.log.Append(rec)

	c.bus.ResetTrigger()
	c.setState(StateIdle)
}
