package action

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kewei-lab/tableplan/internal/scene"
)

// DefaultCubeCapacity is the canonical per-container cube limit.
const DefaultCubeCapacity = 3

// tableStackLimit is how many stacks the table surface holds. The
// simulator decides fullness itself via the "0=F" marker; the number
// only appears in the rejection message.
const tableStackLimit = 3

// ReasonKind is the typed failure classification of a validation verdict.
type ReasonKind string

const (
	ReasonNone              ReasonKind = ""
	ReasonParseError        ReasonKind = "parse_error"
	ReasonNotFound          ReasonKind = "not_found"
	ReasonBlocked           ReasonKind = "blocked"
	ReasonClosedContainer   ReasonKind = "closed_container"
	ReasonDrawerOrder       ReasonKind = "drawer_order_violation"
	ReasonInvalidTargetType ReasonKind = "invalid_target_type"
	ReasonContainerNesting  ReasonKind = "container_nesting"
	ReasonCapacityExceeded  ReasonKind = "capacity_exceeded"
	ReasonAlreadySatisfied  ReasonKind = "already_satisfied"
)

// Result is a validation verdict. Expected failures are carried here
// as data; Validate never panics and never returns a Go error.
type Result struct {
	Valid      bool
	Kind       ReasonKind
	Reason     string
	Details    map[string]bool
	Suggestion string
}

func invalid(kind ReasonKind, reason, suggestion string, details map[string]bool) Result {
	return Result{Kind: kind, Reason: reason, Suggestion: suggestion, Details: details}
}

// Validator applies the physical-feasibility rules of the tabletop
// domain to a command and one scene snapshot. It is a pure function
// over its inputs.
type Validator struct {
	CubeCapacity int
}

// NewValidator creates a Validator; capacity <= 0 selects the default.
func NewValidator(capacity int) *Validator {
	if capacity <= 0 {
		capacity = DefaultCubeCapacity
	}
	return &Validator{CubeCapacity: capacity}
}

// Validate checks a command against the scene. Move checks run in a
// fixed order and short-circuit on the first failure so error messages
// stay deterministic across runs.
func (v *Validator) Validate(cmd Command, g *scene.Graph) Result {
	if g == nil {
		g = &scene.Graph{}
	}
	switch cmd.Verb {
	case VerbOpen, VerbClose:
		return v.validateOpenClose(cmd, g)
	case VerbMove:
		return v.validateMove(cmd, g)
	default:
		return invalid(ReasonParseError,
			fmt.Sprintf("Cannot parse action: %s", cmd.String()),
			"Use format: 'move object_name to target', 'move object_name in target', 'open object_name', or 'close object_name'",
			map[string]bool{})
	}
}

func (v *Validator) validateMove(cmd Command, g *scene.Graph) Result {
	details := map[string]bool{
		"objects_exist":     false,
		"source_movable":    false,
		"target_accessible": false,
		"action_valid":      false,
	}
	a := scene.Analyze(g)
	object, target := cmd.Object, cmd.Target

	// 1. existence
	if !a.Contains(object) {
		return invalid(ReasonNotFound,
			fmt.Sprintf("Source object '%s' not found in scene", object),
			fmt.Sprintf("Please check if '%s' exists in the scene. Available objects: %s", object, availableObjects(a)),
			details)
	}
	if target != "table" && !a.Contains(target) {
		return invalid(ReasonNotFound,
			fmt.Sprintf("Target location '%s' not found in scene", target),
			fmt.Sprintf("Please check if '%s' exists in the scene. Available objects: %s", target, availableObjects(a)),
			details)
	}
	details["objects_exist"] = true

	// 2. source movability
	if scene.IsCube(object) {
		if ok, reason := v.cubeSourceAccessible(object, a); !ok {
			return invalid(ReasonBlocked,
				fmt.Sprintf("Cannot move cube %s: %s", object, reason),
				"Clear blocking objects from source container first, then retry cube movement",
				details)
		}
	}
	if kind, reason := v.movable(object, a, g); kind != ReasonNone {
		return invalid(kind,
			fmt.Sprintf("Cannot move %s: %s", object, reason),
			"Clear the blocking object first, or open the enclosing container",
			details)
	}
	details["source_movable"] = true

	// 3. container nesting
	if scene.IsContainer(object) && scene.IsContainer(target) && target != "table" {
		return invalid(ReasonContainerNesting,
			fmt.Sprintf("Cannot move container '%s' into another container '%s'. Containers cannot be placed inside other containers.", object, target),
			fmt.Sprintf("Place '%s' on the table or on a non-container object instead.", object),
			details)
	}

	// 4. target type
	if target != "table" {
		if scene.IsCube(target) {
			return invalid(ReasonInvalidTargetType,
				fmt.Sprintf("Cannot place objects on cube '%s'. Cubes cannot support other objects.", target),
				"Choose a different target location that can support objects, such as a box or table.",
				details)
		}
		if scene.IsMug(target) {
			return invalid(ReasonInvalidTargetType,
				fmt.Sprintf("Cannot place objects on mug '%s'. Mugs cannot support other objects.", target),
				"Choose a different target location that can support objects, such as a box or table.",
				details)
		}
	}

	// 5. target accessibility
	if target != "table" {
		if kind, reason := v.targetAccessible(target, a, g); kind != ReasonNone {
			return invalid(kind,
				fmt.Sprintf("Cannot place on %s: %s", target, reason),
				"Clear the blocking objects first, or open the target container",
				details)
		}
	}
	details["target_accessible"] = true

	// 6. capacity
	if scene.IsCube(object) && target != "table" && cmd.Relation == scene.RelIn {
		if n := a.CubesIn(target); n >= v.CubeCapacity {
			return invalid(ReasonCapacityExceeded,
				fmt.Sprintf("Cannot place cube %s in %s because container is at capacity (%d/%d cubes).", object, target, n, v.CubeCapacity),
				"Move a cube out of the container first, or choose a different container.",
				details)
		}
	}
	if target == "table" && a.TableStatus == "F" {
		return invalid(ReasonCapacityExceeded,
			fmt.Sprintf("Table is full (%d stacks maximum)", tableStackLimit),
			"Stack the object on an existing pile or free table space first.",
			details)
	}

	// 7. idempotence
	expected := scene.EdgeString(object, cmd.Relation, target)
	if g.HasEdge(expected) || (target == "table" && g.HasEdge(scene.EdgeString(object, scene.RelOn, "table"))) {
		return invalid(ReasonAlreadySatisfied,
			fmt.Sprintf("Action already completed: %s is already %s %s", object, cmd.Relation, target),
			"This action is not needed as the desired state already exists. Please plan a different action or confirm the goal.",
			details)
	}

	details["action_valid"] = true
	return Result{Valid: true, Details: details}
}

// movable mirrors the source-side feasibility rules: nothing on top,
// enclosing container open and drawer-order clean, container itself
// unobstructed.
func (v *Validator) movable(object string, a *scene.Analysis, g *scene.Graph) (ReasonKind, string) {
	if blockers := a.Blockers(object); len(blockers) > 0 {
		return ReasonBlocked, fmt.Sprintf("%s is blocked by %s on top of it", object, blockers[0])
	}

	container, inContainer := a.ContainerOf(object)
	if !inContainer {
		return ReasonNone, ""
	}

	if g.StateOf(container) == scene.StateClosed {
		return ReasonClosedContainer,
			fmt.Sprintf("Cannot move %s from %s because the container is closed. Please open %s first.", object, container, container)
	}
	if scene.IsDrawer(container) {
		if ok, msg := v.drawerAccessible(container, g); !ok {
			return ReasonDrawerOrder, msg
		}
	}
	if blockers := a.Blockers(container); len(blockers) > 0 {
		return ReasonBlocked,
			fmt.Sprintf("%s cannot be moved because its container %s is blocked by %s", object, container, blockers[0])
	}
	return ReasonNone, ""
}

func (v *Validator) targetAccessible(target string, a *scene.Analysis, g *scene.Graph) (ReasonKind, string) {
	if blockers := a.Blockers(target); len(blockers) > 0 {
		return ReasonBlocked,
			fmt.Sprintf("%s is blocked by objects on top: %s. Must clear these objects first.", target, strings.Join(blockers, ", "))
	}
	if strings.Contains(target, "lid_box") || scene.IsDrawer(target) {
		if g.StateOf(target) == scene.StateClosed {
			return ReasonClosedContainer,
				fmt.Sprintf("Cannot place objects in %s because it is closed. Please open %s first.", target, target)
		}
		if scene.IsDrawer(target) {
			if ok, msg := v.drawerAccessible(target, g); !ok {
				return ReasonDrawerOrder, msg
			}
		}
	}
	return ReasonNone, ""
}

// drawerAccessible applies the cabinet ordering rule: a drawer must be
// open itself, the low drawer needs middle and high closed, the middle
// drawer needs high closed, the high drawer stands alone.
func (v *Validator) drawerAccessible(drawer string, g *scene.Graph) (bool, string) {
	if g.StateOf(drawer) != scene.StateOpen {
		return false, fmt.Sprintf("%s is not open. Please open %s first.", drawer, drawer)
	}

	requireClosed := func(other string) (bool, string) {
		if g.StateOf(other) == scene.StateOpen {
			return false, fmt.Sprintf("Cannot access %s because %s is open. Please close %s first.", drawer, other, other)
		}
		return true, ""
	}

	switch drawer {
	case "short_cabinet/drawer_low":
		if ok, msg := requireClosed("short_cabinet/drawer_middle"); !ok {
			return false, msg
		}
		return requireClosed("short_cabinet/drawer_high")
	case "short_cabinet/drawer_middle":
		return requireClosed("short_cabinet/drawer_high")
	default:
		return true, ""
	}
}

// cubeSourceAccessible checks that the container currently holding the
// cube is not pinned under something else.
func (v *Validator) cubeSourceAccessible(cube string, a *scene.Analysis) (bool, string) {
	container, inContainer := a.ContainerOf(cube)
	if !inContainer || container == "table" {
		return true, ""
	}
	if blockers := a.Blockers(container); len(blockers) > 0 {
		return false, fmt.Sprintf("Container %s is blocked by: %s. Must clear these objects first before accessing %s.",
			container, strings.Join(blockers, ", "), cube)
	}
	return true, ""
}

func (v *Validator) validateOpenClose(cmd Command, g *scene.Graph) Result {
	details := map[string]bool{
		"object_exists": false,
		"state_valid":   false,
		"action_valid":  false,
	}
	a := scene.Analyze(g)
	target := cmd.Target

	if !a.Contains(target) {
		return invalid(ReasonNotFound,
			fmt.Sprintf("Object '%s' not found in scene graph", target),
			fmt.Sprintf("Please check if '%s' exists in the scene. Available objects: %s", target, availableObjects(a)),
			details)
	}
	details["object_exists"] = true

	state := g.StateOf(target)
	if state == scene.StateUnknown {
		return invalid(ReasonInvalidTargetType,
			fmt.Sprintf("Object '%s' does not have open/close state information in scene graph", target),
			fmt.Sprintf("The object '%s' may not support open/close operations, or its state is not tracked in the scene graph", target),
			details)
	}
	details["state_valid"] = true

	if cmd.Verb == VerbOpen && state == scene.StateOpen {
		return invalid(ReasonAlreadySatisfied,
			fmt.Sprintf("Object '%s' is already open. Cannot open an already opened object.", target),
			fmt.Sprintf("The object '%s' is already in 'open' state. You can 'close %s' instead.", target, target),
			details)
	}
	if cmd.Verb == VerbClose && state == scene.StateClosed {
		return invalid(ReasonAlreadySatisfied,
			fmt.Sprintf("Object '%s' is already closed. Cannot close an already closed object.", target),
			fmt.Sprintf("The object '%s' is already in 'closed' state. You can 'open %s' instead.", target, target),
			details)
	}

	details["action_valid"] = true
	return Result{Valid: true, Details: details}
}

func availableObjects(a *scene.Analysis) string {
	names := make([]string, 0, len(a.AllObjects))
	for name := range a.AllObjects {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
