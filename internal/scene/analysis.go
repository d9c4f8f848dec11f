package scene

import "fmt"

// Analysis is a derived view over one graph snapshot used by the
// validator: which objects exist, which are pinned under something,
// and how crowded the table is.
type Analysis struct {
	AllObjects     map[string]struct{}
	MovableObjects map[string]struct{}
	BlockedObjects map[string]struct{}
	ObjectsOnTable map[string]struct{}
	TableStatus    string
	StackCount     int
	Edges          []string
	Summary        string
}

// Analyze builds an Analysis from a graph snapshot.
func Analyze(g *Graph) *Analysis {
	a := &Analysis{
		AllObjects:     map[string]struct{}{},
		MovableObjects: map[string]struct{}{},
		BlockedObjects: map[string]struct{}{},
		ObjectsOnTable: map[string]struct{}{},
		TableStatus:    "T",
	}
	if g == nil {
		return a
	}
	a.Edges = append([]string{}, g.Edges...)

	for _, e := range g.Edges {
		obj, _, tgt, ok := SplitEdge(e)
		if !ok {
			continue
		}
		if name := BareName(obj); name != "table" {
			a.AllObjects[name] = struct{}{}
		}
		if name := BareName(tgt); name != "table" {
			a.AllObjects[name] = struct{}{}
		}
	}
	for _, n := range g.Nodes {
		if name := BareName(n); name != "" && name != "table" && name != "0" {
			a.AllObjects[name] = struct{}{}
		}
	}

	for name := range a.AllObjects {
		a.MovableObjects[name] = struct{}{}
	}

	for _, e := range g.Edges {
		if obj, rel, tgt, ok := SplitEdge(e); ok {
			if rel != RelOn {
				continue
			}
			objName := BareName(obj)
			tgtName := BareName(tgt)
			if tgtName == "table" {
				a.ObjectsOnTable[objName] = struct{}{}
			} else {
				a.BlockedObjects[tgtName] = struct{}{}
				delete(a.MovableObjects, tgtName)
			}
			continue
		}
		// "0=T"/"0=F" table-capacity marker
		if len(e) >= 3 && e[:2] == "0=" {
			a.TableStatus = e[2:]
		}
	}

	a.StackCount = len(a.ObjectsOnTable)
	a.Summary = fmt.Sprintf("Total objects: %d, Movable: %d, Blocked: %d, Table stacks: %d, Table status: %s",
		len(a.AllObjects), len(a.MovableObjects), len(a.BlockedObjects), a.StackCount, a.TableStatus)
	return a
}

// Contains reports whether the named object exists in the analysis.
func (a *Analysis) Contains(name string) bool {
	_, ok := a.AllObjects[name]
	return ok
}

// Blockers returns the objects sitting directly on top of target.
func (a *Analysis) Blockers(target string) []string {
	var out []string
	for _, e := range a.Edges {
		if obj, rel, tgt, ok := SplitEdge(e); ok && rel == RelOn && BareName(tgt) == target {
			out = append(out, BareName(obj))
		}
	}
	return out
}

// ContainerOf returns the container the object currently sits in, if any.
func (a *Analysis) ContainerOf(object string) (string, bool) {
	for _, e := range a.Edges {
		if obj, rel, tgt, ok := SplitEdge(e); ok && rel == RelIn && BareName(obj) == object {
			return BareName(tgt), true
		}
	}
	return "", false
}

// CubesIn counts the cubes currently inside the container.
func (a *Analysis) CubesIn(container string) int {
	n := 0
	for _, e := range a.Edges {
		if obj, rel, tgt, ok := SplitEdge(e); ok && rel == RelIn && BareName(tgt) == container && IsCube(BareName(obj)) {
			n++
		}
	}
	return n
}
