package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kewei-lab/tableplan/internal/action"
	"github.com/kewei-lab/tableplan/internal/scene"
)

// mockBus is a hand-rolled bus double. Pump runs an optional hook so
// tests can feed the store mid-wait, the way real deliveries arrive.
type mockBus struct {
	mu           sync.Mutex
	instructions []string
	initScenes   [][]byte
	trigger      bool
	pumpCount    int
	onPump       func(pumps int)
	publishErr   error
}

func (b *mockBus) PublishInstruction(cmd string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.instructions = append(b.instructions, cmd)
	return nil
}

func (b *mockBus) PublishInitialScene(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initScenes = append(b.initScenes, append([]byte{}, raw...))
	return nil
}

func (b *mockBus) Pump() {
	b.mu.Lock()
	b.pumpCount++
	n := b.pumpCount
	hook := b.onPump
	b.mu.Unlock()
	if hook != nil {
		hook(n)
	}
}

func (b *mockBus) TriggerSeen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trigger
}

func (b *mockBus) ResetTrigger() {
	b.mu.Lock()
	b.trigger = false
	b.mu.Unlock()
}

func (b *mockBus) fireTrigger() {
	b.mu.Lock()
	b.trigger = true
	b.mu.Unlock()
}

func (b *mockBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.instructions...)
}

func newTestStore(t *testing.T, raw string) *scene.Store {
	t.Helper()
	s := scene.NewStore(0)
	if err := s.Update([]byte(raw)); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

func fastCoordinator(bus Bus, store *scene.Store) *Coordinator {
	return NewCoordinator(bus, store, nil, 500*time.Millisecond, 10*time.Millisecond, 5*time.Millisecond)
}

func TestExecute_SuccessRoundTrip(t *testing.T) {
	store := newTestStore(t, `{"nodes":["red_cube1","red_box"],"edges":["red_cube1(on)table","0=T"]}`)
	bus := &mockBus{}
	bus.onPump = func(pumps int) {
		if pumps == 3 {
			bus.fireTrigger()
			_ = store.Update([]byte(`{"nodes":["red_cube1","red_box"],"edges":["red_cube1(in)red_box","0=T"]}`))
		}
	}
	c := fastCoordinator(bus, store)

	cmd, _ := action.Parse("move red_cube1 in red_box")
	res := c.Execute(context.Background(), "task-1", cmd)

	if res.Status != StatusExecutionSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Message)
	}
	if got := bus.published(); len(got) != 1 || got[0] != "move red_cube1 in red_box" {
		t.Errorf("unexpected published instructions: %v", got)
	}
	if len(bus.initScenes) != 1 {
		t.Errorf("expected one initial scene publish, got %d", len(bus.initScenes))
	}
	if res.ChangeAnalysis == nil || !res.ChangeAnalysis.HasChanges {
		t.Fatalf("expected change analysis with changes, got %+v", res.ChangeAnalysis)
	}
	wantAdded := "red_cube1(in)red_box"
	if len(res.ChangeAnalysis.EdgesAdded) != 1 || res.ChangeAnalysis.EdgesAdded[0] != wantAdded {
		t.Errorf("edges added = %v, want [%s]", res.ChangeAnalysis.EdgesAdded, wantAdded)
	}
	wantRemoved := "red_cube1(on)table"
	if len(res.ChangeAnalysis.EdgesRemoved) != 1 || res.ChangeAnalysis.EdgesRemoved[0] != wantRemoved {
		t.Errorf("edges removed = %v, want [%s]", res.ChangeAnalysis.EdgesRemoved, wantRemoved)
	}
	if c.State() != StateIdle {
		t.Errorf("coordinator should return to idle, got %s", c.State())
	}
}

func TestExecute_Timeout(t *testing.T) {
	store := newTestStore(t, `{"nodes":["a"],"edges":["a(on)table"]}`)
	bus := &mockBus{}
	c := NewCoordinator(bus, store, nil, 50*time.Millisecond, 10*time.Millisecond, 5*time.Millisecond)

	cmd, _ := action.Parse("move a on table")
	res := c.Execute(context.Background(), "task-1", cmd)

	if res.Status != StatusExecutionTimeout {
		t.Fatalf("expected timeout, got %s", res.Status)
	}
	if res.CurrentSceneGraph == nil {
		t.Error("timeout result should carry the last known scene")
	}
	recs := c.Log().Snapshot()
	if len(recs) != 1 || recs[0].Status != StatusExecutionTimeout {
		t.Errorf("expected one timeout record, got %+v", recs)
	}
}

func TestExecute_StripsDirectivePrefix(t *testing.T) {
	store := newTestStore(t, `{"nodes":["box1"],"edges":[]}`)
	bus := &mockBus{}
	bus.onPump = func(int) { bus.fireTrigger() }
	c := fastCoordinator(bus, store)

	cmd, _ := action.Parse("action type 1: move box1 to table")
	c.Execute(context.Background(), "task-1", cmd)

	got := bus.published()
	if len(got) != 1 || got[0] != "move box1 on table" {
		t.Errorf("published %v, want the bare canonical command", got)
	}
}

func TestExecute_PublishFailure(t *testing.T) {
	store := newTestStore(t, `{"nodes":["a"],"edges":[]}`)
	bus := &mockBus{publishErr: errors.New("broker unreachable")}
	c := fastCoordinator(bus, store)

	cmd, _ := action.Parse("move a on table")
	res := c.Execute(context.Background(), "task-1", cmd)

	if res.Status != StatusExecutionError {
		t.Fatalf("expected execution_error, got %s", res.Status)
	}
}

func TestExecute_NoSceneYet(t *testing.T) {
	bus := &mockBus{}
	c := fastCoordinator(bus, scene.NewStore(0))

	cmd, _ := action.Parse("move a on table")
	res := c.Execute(context.Background(), "task-1", cmd)

	if res.Status != StatusExecutionError {
		t.Fatalf("expected execution_error, got %s", res.Status)
	}
	if len(bus.published()) != 0 {
		t.Error("nothing should be published without a scene snapshot")
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	store := newTestStore(t, `{"nodes":["a"],"edges":[]}`)
	bus := &mockBus{}
	c := NewCoordinator(bus, store, nil, time.Minute, 10*time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	bus.onPump = func(pumps int) {
		if pumps == 2 {
			cancel()
		}
	}

	cmd, _ := action.Parse("move a on table")
	res := c.Execute(ctx, "task-1", cmd)

	if res.Status != StatusExecutionError {
		t.Fatalf("expected execution_error on cancel, got %s", res.Status)
	}
}
