package scene

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is a snapshot of the tabletop scene as published by the simulator.
// Nodes are object identifiers, optionally carrying a "(open)"/"(closed)"
// state suffix. Edges are relation strings: "obj(on)target", "obj(in)target",
// or the table-capacity marker "0=T"/"0=F".
type Graph struct {
	Timestamp int64    `json:"timestamp,omitempty"`
	Nodes     []string `json:"nodes"`
	Edges     []string `json:"edges"`
}

// Relation is the placement relation between an object and its target.
type Relation string

const (
	RelOn Relation = "on"
	RelIn Relation = "in"
)

// State is the open/closed state embedded in a node or edge name.
type State string

const (
	StateOpen    State = "open"
	StateClosed  State = "closed"
	StateUnknown State = ""
)

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{Timestamp: g.Timestamp}
	out.Nodes = append([]string{}, g.Nodes...)
	out.Edges = append([]string{}, g.Edges...)
	return out
}

// Equal reports whether two graphs carry the same nodes and edges.
// Timestamps are ignored: the simulator republishes identical frames
// with fresh timestamps and those must count as stable.
func (g *Graph) Equal(other *Graph) bool {
	if g == nil || other == nil {
		return g == other
	}
	if len(g.Nodes) != len(other.Nodes) || len(g.Edges) != len(other.Edges) {
		return false
	}
	for i := range g.Nodes {
		if g.Nodes[i] != other.Nodes[i] {
			return false
		}
	}
	for i := range g.Edges {
		if g.Edges[i] != other.Edges[i] {
			return false
		}
	}
	return true
}

// HasEdge reports whether the exact edge string is present.
func (g *Graph) HasEdge(edge string) bool {
	for _, e := range g.Edges {
		if e == edge {
			return true
		}
	}
	return false
}

// BareName strips the "(open)"/"(closed)" state suffix from a node name.
func BareName(name string) string {
	name = strings.ReplaceAll(name, "(open)", "")
	return strings.ReplaceAll(name, "(closed)", "")
}

// EdgeString builds the canonical edge string for a placement.
func EdgeString(object string, rel Relation, target string) string {
	return fmt.Sprintf("%s(%s)%s", object, rel, target)
}

// SplitEdge decomposes a placement edge into its parts. Table-capacity
// markers and malformed edges return ok=false.
func SplitEdge(edge string) (object string, rel Relation, target string, ok bool) {
	for _, r := range []Relation{RelOn, RelIn} {
		sep := "(" + string(r) + ")"
		if i := strings.Index(edge, sep); i >= 0 {
			object = strings.TrimSpace(edge[:i])
			target = strings.TrimSpace(edge[i+len(sep):])
			if object == "" || target == "" {
				return "", "", "", false
			}
			return object, r, target, true
		}
	}
	return "", "", "", false
}

// StateOf looks up the open/closed state of an object, checking nodes
// first and then edge mentions, mirroring the simulator's two encodings.
func (g *Graph) StateOf(object string) State {
	for _, n := range g.Nodes {
		if strings.HasPrefix(n, object+"(") {
			if strings.Contains(n, "(open)") {
				return StateOpen
			}
			if strings.Contains(n, "(closed)") {
				return StateClosed
			}
		}
	}
	for _, e := range g.Edges {
		if !strings.Contains(e, object) {
			continue
		}
		if strings.Contains(e, object+"(open)") {
			return StateOpen
		}
		if strings.Contains(e, object+"(closed)") {
			return StateClosed
		}
	}
	return StateUnknown
}

// PlacementOf returns the outgoing placement edge of an object, if any.
func (g *Graph) PlacementOf(object string) (rel Relation, target string, ok bool) {
	for _, e := range g.Edges {
		obj, r, tgt, valid := SplitEdge(e)
		if valid && obj == object {
			return r, tgt, true
		}
	}
	return "", "", false
}

// ContradictoryPlacements returns objects that carry more than one
// outgoing placement edge. A well-formed scene never produces these;
// they are surfaced instead of silently accepted.
func (g *Graph) ContradictoryPlacements() []string {
	counts := map[string]int{}
	for _, e := range g.Edges {
		if obj, _, _, ok := SplitEdge(e); ok {
			counts[obj]++
		}
	}
	var bad []string
	for obj, n := range counts {
		if n > 1 {
			bad = append(bad, obj)
		}
	}
	sort.Strings(bad)
	return bad
}

// Diff compares two snapshots and returns the edges added and removed.
func Diff(before, after *Graph) (added, removed []string) {
	beforeSet := map[string]struct{}{}
	for _, e := range before.Edges {
		beforeSet[e] = struct{}{}
	}
	afterSet := map[string]struct{}{}
	for _, e := range after.Edges {
		afterSet[e] = struct{}{}
	}
	for _, e := range after.Edges {
		if _, ok := beforeSet[e]; !ok {
			added = append(added, e)
		}
	}
	for _, e := range before.Edges {
		if _, ok := afterSet[e]; !ok {
			removed = append(removed, e)
		}
	}
	return added, removed
}
