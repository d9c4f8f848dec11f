package agent

import "fmt"

// DefaultRepeatLimit is the identical-command streak that trips the
// guard.
const DefaultRepeatLimit = 5

// RepetitionGuard rejects commands the planner keeps re-issuing. It
// watches the last two accepted commands: an A-B-A bounce is rejected
// as oscillation, and an unbroken streak of the same command is
// rejected once it reaches the limit. The window survives successful
// executions so oscillation across completed actions is still caught.
type RepetitionGuard struct {
	limit  int
	last   string
	prev   string
	streak int
}

// NewRepetitionGuard creates a guard; limit <= 0 selects the default.
func NewRepetitionGuard(limit int) *RepetitionGuard {
	if limit <= 0 {
		limit = DefaultRepeatLimit
	}
	return &RepetitionGuard{limit: limit}
}

// Check admits or rejects a command. The streak counter starts at zero
// on a fresh command, so the limit counts repeats: with the default
// limit the sixth identical submission is the first rejected. A streak
// rejection clears only the streak and its command; the one-before-last
// command survives so oscillation is still caught afterwards.
func (g *RepetitionGuard) Check(cmd string) (string, bool) {
	if cmd == g.last && g.last != "" {
		g.streak++
		if g.streak >= g.limit {
			g.last = ""
			g.streak = 0
			return fmt.Sprintf("invalid, reason: The action %q was repeated.", cmd), false
		}
		return "", true
	}

	if cmd == g.prev && g.prev != "" {
		g.Reset()
		return fmt.Sprintf("invalid, reason: The action %q is the same as the one before last.", cmd), false
	}

	g.prev = g.last
	g.last = cmd
	g.streak = 0
	return "", true
}

// Reset clears the window and the streak counter.
func (g *RepetitionGuard) Reset() {
	g.last = ""
	g.prev = ""
	g.streak = 0
}
