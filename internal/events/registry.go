package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// task
	"task.received":  {},
	"task.started":   {},
	"task.completed": {},
	"task.failed":    {},
	"task.retried":   {},

	// plan
	"plan.requested": {},
	"plan.completed": {},
	"plan.no_action": {},
	"plan.retry":     {},

	// action
	"action.validated": {},
	"action.rejected":  {},
	"action.published": {},
	"action.completed": {},
	"action.timeout":   {},
	"action.error":     {},
	"action.repeated":  {},

	// scene
	"scene.updated":       {},
	"scene.parse_error":   {},
	"scene.stable":        {},
	"scene.refreshed":     {},
	"scene.contradiction": {},

	// bus
	"bus.connected":     {},
	"bus.disconnected":  {},
	"bus.publish_error": {},
	"bus.dropped":       {},

	// report
	"report.saved": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
