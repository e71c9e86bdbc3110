package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlannedSession(height float64) *State {
	s := New("architect", "main", "add a wall on level 1")
	s.AddAction(&Action{
		Tool: "create_wall",
		Parameters: map[string]any{
			"start":     []any{0.0, 0.0},
			"end":       []any{5.0, 0.0},
			"height":    height,
			"thickness": 0.2,
		},
		Reasoning: "user request",
	})
	return s
}

func TestDeterminismHash_EqualForIdenticalInput(t *testing.T) {
	a := newPlannedSession(3.0)
	b := newPlannedSession(3.0)
	require.NotEqual(t, a.ID, b.ID)

	ha, err := a.DeterminismHash()
	require.NoError(t, err)
	hb, err := b.DeterminismHash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestDeterminismHash_ChangesWithPlan(t *testing.T) {
	base, err := newPlannedSession(3.0).DeterminismHash()
	require.NoError(t, err)

	t.Run("parameter value", func(t *testing.T) {
		h, err := newPlannedSession(3.5).DeterminismHash()
		require.NoError(t, err)
		assert.NotEqual(t, base, h)
	})

	t.Run("tool name", func(t *testing.T) {
		s := newPlannedSession(3.0)
		s.Actions[0].Tool = "create_beam"
		h, err := s.DeterminismHash()
		require.NoError(t, err)
		assert.NotEqual(t, base, h)
	})

	t.Run("branch", func(t *testing.T) {
		s := newPlannedSession(3.0)
		s.BranchID = "feature/atrium"
		h, err := s.DeterminismHash()
		require.NoError(t, err)
		assert.NotEqual(t, base, h)
	})
}

func TestDeterminismHash_IgnoresReasoningAndResults(t *testing.T) {
	base, err := newPlannedSession(3.0).DeterminismHash()
	require.NoError(t, err)

	s := newPlannedSession(3.0)
	s.Actions[0].Reasoning = "different wording"
	s.DryRunResults = append(s.DryRunResults, Result{Success: true})
	h, err := s.DeterminismHash()
	require.NoError(t, err)

	assert.Equal(t, base, h)
}
