// Package action parses planner text into structured manipulation
// commands and validates them against a scene snapshot.
package action

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kewei-lab/tableplan/internal/scene"
)

// Verb is the closed set of physical actions the simulator understands.
type Verb string

const (
	VerbMove  Verb = "move"
	VerbOpen  Verb = "open"
	VerbClose Verb = "close"
)

// Command is a parsed manipulation command. For move commands Object,
// Relation and Target are set; open/close carry only Target.
type Command struct {
	Verb     Verb
	Object   string
	Relation scene.Relation
	Target   string
}

// String renders the canonical command text published to the simulator.
func (c Command) String() string {
	if c.Verb == VerbMove {
		return fmt.Sprintf("move %s %s %s", c.Object, c.Relation, c.Target)
	}
	return fmt.Sprintf("%s %s", c.Verb, c.Target)
}

// Drawer shorthands the planner tends to emit, rewritten to the full
// container-qualified path before any scene lookup.
var drawerAliases = map[string]string{
	"drawer_high":   "short_cabinet/drawer_high",
	"drawer_middle": "short_cabinet/drawer_middle",
	"drawer_low":    "short_cabinet/drawer_low",
}

func canonicalName(name string) string {
	if full, ok := drawerAliases[name]; ok {
		return full
	}
	return name
}

var (
	thinkRe     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	ordinalRe   = regexp.MustCompile(`^\d+\.\s*`)
	wrapperRe   = regexp.MustCompile(`(?i)validateAndExecuteAction\(["'](.+?)["']\)`)
	openCloseRe = regexp.MustCompile(`^\s*(?:Action:\s*)?(open|close)\s+([\w/-]+)[\s.]*$`)
	moveRe      = regexp.MustCompile(`^\s*(?:Action:\s*)?(?i:move|put)\s+([\w/-]+)\s+(on|in|into|to|upon)\s+([\w/-]+)[\s.]*$`)
	directiveRe = regexp.MustCompile(`(?i)^(?:action\s+type\s+\d+|step\s+\d+)\s*:\s*(.+)$`)
)

func normalizeRelation(prep string) scene.Relation {
	switch prep {
	case "into", "in":
		return scene.RelIn
	default:
		return scene.RelOn
	}
}

// StripDirective removes a leading "action type N:" or "step N:" prefix
// so only the bare command goes out on the wire.
func StripDirective(s string) string {
	if m := directiveRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// Parse extracts the first actionable command from planner output.
// The planner may wrap its answer in reasoning tags, emit numbered
// lists, or chain several actions with commas; only the first match
// is returned. A false result means the text requested no physical
// action, which callers treat as a final answer, not an error.
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))

	var candidates []string
	for _, chunk := range strings.Split(text, ",") {
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				candidates = append(candidates, line)
			}
		}
	}

	for _, candidate := range candidates {
		candidate = StripDirective(candidate)
		candidate = ordinalRe.ReplaceAllString(candidate, "")
		if m := wrapperRe.FindStringSubmatch(candidate); m != nil {
			candidate = m[1]
		}

		if m := openCloseRe.FindStringSubmatch(candidate); m != nil {
			return Command{
				Verb:   Verb(m[1]),
				Target: canonicalName(m[2]),
			}, true
		}

		if m := moveRe.FindStringSubmatch(candidate); m != nil {
			return Command{
				Verb:     VerbMove,
				Object:   canonicalName(m[1]),
				Relation: normalizeRelation(m[2]),
				Target:   canonicalName(m[3]),
			}, true
		}
	}

	return Command{}, false
}
