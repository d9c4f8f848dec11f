package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kewei-lab/tableplan/internal/events"
)

const (
	// DefaultStableFrameThreshold is how many identical consecutive
	// frames count as a settled scene.
	DefaultStableFrameThreshold = 5

	// DefaultRefreshAttempts / DefaultRefreshInterval bound a
	// ForceRefresh pump loop.
	DefaultRefreshAttempts = 10
	DefaultRefreshInterval = 50 * time.Millisecond

	defaultMaxHistory = 10
)

// NotAvailableMessage is returned by Render before the first update
// arrives from the simulator.
const NotAvailableMessage = "Scene graph is not available yet. Please wait for the update."

// Store is the single owner of the current scene graph. All writes go
// through Update on the control goroutine; readers get deep copies.
type Store struct {
	mu sync.Mutex

	current *Graph
	raw     []byte

	waiting      bool
	reference    *Graph
	history      []*Graph
	stableFrames int
	threshold    int
	maxHistory   int

	parseSuccess   int
	parseError     int
	contradictions int
}

// NewStore creates a Store with the given stability threshold.
// A threshold of zero selects the default.
func NewStore(threshold int) *Store {
	if threshold <= 0 {
		threshold = DefaultStableFrameThreshold
	}
	return &Store{
		threshold:  threshold,
		maxHistory: defaultMaxHistory,
	}
}

// Update decodes a raw payload and installs it as the current scene.
// Malformed payloads are counted and reported but leave the current
// graph untouched. A frame giving one object several placements is
// installed anyway, but flagged.
func (s *Store) Update(raw []byte) error {
	g, err := Decode(raw)
	if err != nil {
		s.mu.Lock()
		s.parseError++
		s.mu.Unlock()
		return err
	}

	contradictions := g.ContradictoryPlacements()

	s.mu.Lock()
	s.current = g
	s.raw = append([]byte{}, raw...)
	s.parseSuccess++
	if len(contradictions) > 0 {
		s.contradictions++
	}
	if s.waiting {
		s.observeFrame(g)
	}
	s.mu.Unlock()

	if len(contradictions) > 0 {
		events.Emit("warn", "scene.contradiction", strings.Join(contradictions, ", "), map[string]interface{}{
			"objects": contradictions,
		})
	}
	return nil
}

// observeFrame advances the stable-frame counter. Called with the lock held.
func (s *Store) observeFrame(g *Graph) {
	if len(s.history) == 0 {
		s.history = []*Graph{g}
		s.stableFrames = 1
		return
	}
	if s.history[len(s.history)-1].Equal(g) {
		s.stableFrames++
		if len(s.history) < s.maxHistory {
			s.history = append(s.history, g)
		}
		return
	}
	s.stableFrames = 1
	s.history = []*Graph{g}
}

// Latest returns a deep copy of the current graph. The second return
// is false before the first successful update.
func (s *Store) Latest() (*Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.Clone(), true
}

// LatestRaw returns the raw payload of the current graph alongside its
// decoded form, both copied.
func (s *Store) LatestRaw() ([]byte, *Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil, false
	}
	return append([]byte{}, s.raw...), s.current.Clone(), true
}

// Render formats the current graph for the planner's context window.
func (s *Store) Render() string {
	g, ok := s.Latest()
	if !ok {
		return NotAvailableMessage
	}
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return NotAvailableMessage
	}
	return fmt.Sprintf("Current scene graph: %s", string(b))
}

// StartWaiting begins stability tracking against a reference snapshot.
func (s *Store) StartWaiting(reference *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = true
	s.reference = reference.Clone()
	s.history = nil
	s.stableFrames = 0
}

// StopWaiting ends stability tracking and clears its state.
func (s *Store) StopWaiting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = false
	s.reference = nil
	s.history = nil
	s.stableFrames = 0
}

// UpdateStatus reports the current stability state while waiting.
// changed is true only when the stable graph differs from the
// reference captured at StartWaiting.
func (s *Store) UpdateStatus() (stable bool, changed bool, stableGraph *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.waiting {
		return false, false, nil
	}
	stable = s.stableFrames >= s.threshold
	if stable && len(s.history) > 0 {
		stableGraph = s.history[0].Clone()
		changed = s.reference == nil || !stableGraph.Equal(s.reference)
	}
	return stable, changed, stableGraph
}

// ForceRefresh drives the pump to drain any queued updates, stopping
// early as soon as a new frame lands. Returns true if the current
// graph changed or a fresh frame was parsed.
func (s *Store) ForceRefresh(ctx context.Context, pump func()) bool {
	s.mu.Lock()
	oldCount := s.parseSuccess
	var oldGraph *Graph
	if s.current != nil {
		oldGraph = s.current.Clone()
	}
	s.mu.Unlock()

	for i := 0; i < DefaultRefreshAttempts; i++ {
		pump()

		s.mu.Lock()
		fresh := s.parseSuccess > oldCount
		s.mu.Unlock()
		if fresh {
			break
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(DefaultRefreshInterval):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parseSuccess > oldCount {
		return true
	}
	if s.current == nil || oldGraph == nil {
		return s.current != nil && oldGraph == nil
	}
	return !s.current.Equal(oldGraph)
}

// Stats reports store counters for the status API.
func (s *Store) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeCount, edgeCount := 0, 0
	if s.current != nil {
		nodeCount = len(s.current.Nodes)
		edgeCount = len(s.current.Edges)
	}
	return map[string]interface{}{
		"current_node_count":     nodeCount,
		"current_edge_count":     edgeCount,
		"is_waiting_for_update":  s.waiting,
		"stable_frame_count":     s.stableFrames,
		"required_stable_frames": s.threshold,
		"history_size":           len(s.history),
		"parse_success_count":    s.parseSuccess,
		"parse_error_count":      s.parseError,
		"contradiction_count":    s.contradictions,
	}
}
