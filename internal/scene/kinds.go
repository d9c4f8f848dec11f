package scene

import "strings"

// Object-kind helpers. Kinds are encoded in the simulator's naming
// convention, not in the graph itself.

// IsCube reports whether the object is a cube.
func IsCube(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_cube") || strings.Contains(lower, "cube")
}

// IsMug reports whether the object is a mug. Mugs cannot support or
// contain other objects.
func IsMug(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_mug") || strings.Contains(lower, "mug")
}

// IsDrawer reports whether the object is a cabinet drawer.
func IsDrawer(name string) bool {
	return strings.Contains(strings.ToLower(name), "drawer")
}

// IsContainer reports whether the object can hold other objects:
// drawers, lidded boxes, and plain boxes.
func IsContainer(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "drawer") {
		return true
	}
	if strings.Contains(lower, "lid_box") {
		return true
	}
	return strings.HasSuffix(lower, "_box")
}
