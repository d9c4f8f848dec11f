package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_AllowsFreshCommands(t *testing.T) {
	g := NewRepetitionGuard(5)

	for _, cmd := range []string{"open lid_box", "move red_cube in lid_box", "close lid_box"} {
		reason, ok := g.Check(cmd)
		assert.True(t, ok, "command %q should pass", cmd)
		assert.Empty(t, reason)
	}
}

func TestGuard_RejectsOscillation(t *testing.T) {
	g := NewRepetitionGuard(5)

	_, ok := g.Check("open lid_box")
	assert.True(t, ok)
	_, ok = g.Check("close lid_box")
	assert.True(t, ok)

	reason, ok := g.Check("open lid_box")
	assert.False(t, ok)
	assert.Equal(t, `invalid, reason: The action "open lid_box" is the same as the one before last.`, reason)

	// Rejection resets the window, so the same command passes again.
	_, ok = g.Check("open lid_box")
	assert.True(t, ok)
}

func TestGuard_RejectsLongStreak(t *testing.T) {
	// The first submission opens the streak at zero; five repeats are
	// needed to reach the limit, so the sixth submission is rejected.
	g := NewRepetitionGuard(5)

	for i := 0; i < 5; i++ {
		_, ok := g.Check("move red_cube on table")
		assert.True(t, ok, "submission %d should pass", i+1)
	}

	reason, ok := g.Check("move red_cube on table")
	assert.False(t, ok)
	assert.Equal(t, `invalid, reason: The action "move red_cube on table" was repeated.`, reason)
}

func TestGuard_StreakBrokenByOtherCommand(t *testing.T) {
	g := NewRepetitionGuard(3)

	g.Check("move red_cube on table")
	g.Check("move red_cube on table")
	g.Check("open lid_box")

	// The streak restarted, so three more submissions are fine.
	_, ok := g.Check("move blue_cube on table")
	assert.True(t, ok)
	_, ok = g.Check("move blue_cube on table")
	assert.True(t, ok)
	_, ok = g.Check("move blue_cube on table")
	assert.True(t, ok)
	reason, ok := g.Check("move blue_cube on table")
	assert.False(t, ok)
	assert.Contains(t, reason, "was repeated")
}

func TestGuard_StreakRejectionKeepsOscillationWindow(t *testing.T) {
	g := NewRepetitionGuard(3)

	_, ok := g.Check("open lid_box")
	assert.True(t, ok)
	for i := 0; i < 3; i++ {
		_, ok = g.Check("move red_cube on table")
		assert.True(t, ok, "submission %d should pass", i+1)
	}
	reason, ok := g.Check("move red_cube on table")
	assert.False(t, ok)
	assert.Contains(t, reason, "was repeated")

	// The one-before-last command survives the streak rejection, so
	// bouncing back to it is still caught as oscillation.
	reason, ok = g.Check("open lid_box")
	assert.False(t, ok)
	assert.Contains(t, reason, "the one before last")
}

func TestGuard_WindowSurvivesAcrossCommands(t *testing.T) {
	// A-B-A must be caught even when A and B both executed fine.
	g := NewRepetitionGuard(5)

	_, ok := g.Check("move red_cube in lid_box")
	assert.True(t, ok)
	_, ok = g.Check("move red_cube on table")
	assert.True(t, ok)

	reason, ok := g.Check("move red_cube in lid_box")
	assert.False(t, ok)
	assert.Contains(t, reason, "the one before last")
}
