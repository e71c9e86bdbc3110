package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New("architect-1", "main", "add a wall")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, PhasePlan, s.Phase)
	assert.Equal(t, "architect-1", s.AgentID)
	assert.Equal(t, "main", s.BranchID)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Empty(t, s.Events())
}

func TestCanTransition_Graph(t *testing.T) {
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{PhasePlan, PhaseExecute, true},
		{PhasePlan, PhaseCommit, false},
		{PhaseExecute, PhaseValidate, true},
		{PhaseExecute, PhaseEscalated, true},
		{PhaseValidate, PhaseAwaitingApproval, true},
		{PhaseValidate, PhaseCommit, true},
		{PhaseValidate, PhaseExecute, false},
		{PhaseAwaitingApproval, PhaseCommit, true},
		{PhaseAwaitingApproval, PhaseEscalated, true},
		{PhaseCommit, PhaseCompleted, true},
		{PhaseCommit, PhasePlan, false},
		{PhaseCompleted, PhaseFailed, false},
		{PhaseEscalated, PhaseAwaitingApproval, false},
		{Phase("bogus"), PhasePlan, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := CanTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			}
		})
	}
}

func TestTransition_NoBackwardEdges(t *testing.T) {
	// Every edge must go strictly forward in graph order, which is what
	// makes every run visit each phase at most once.
	order := map[Phase]int{}
	for i, p := range AllPhases() {
		order[p] = i
	}
	for from, next := range transitions {
		for _, to := range next {
			assert.Greater(t, order[to], order[from], "%s -> %s", from, to)
		}
	}
}

func TestTransition_RecordsHistory(t *testing.T) {
	s := New("a", "main", "r")

	require.NoError(t, s.Transition(PhaseExecute))
	require.NoError(t, s.Transition(PhaseValidate))
	err := s.Transition(PhasePlan)
	require.Error(t, err)

	assert.Equal(t, PhaseValidate, s.Phase)
	assert.Equal(t, []Phase{PhasePlan, PhaseExecute, PhaseValidate}, s.PhasePath())
	assert.Len(t, s.Events(), 2)
}

func TestEvents_ReturnsCopy(t *testing.T) {
	s := New("a", "main", "r")
	s.Record(EventDryRun, "create_wall")

	events := s.Events()
	events[0].Detail = "tampered"

	assert.Equal(t, "create_wall", s.Events()[0].Detail)
}

func TestEscalateAndFail(t *testing.T) {
	s := New("a", "main", "r")
	require.NoError(t, s.Transition(PhaseExecute))
	require.NoError(t, s.Escalate("Rate limit exceeded"))
	assert.Equal(t, PhaseEscalated, s.Phase)
	assert.Equal(t, "Rate limit exceeded", s.EscalationReason)
	assert.True(t, s.Phase.IsTerminal())

	f := New("a", "main", "r")
	require.NoError(t, f.Fail("boom"))
	assert.Equal(t, PhaseFailed, f.Phase)
	assert.Equal(t, "boom", f.FailureReason)
}

func TestAddAction_AssignsID(t *testing.T) {
	s := New("a", "main", "r")
	s.AddAction(&Action{Tool: "create_wall"})
	s.AddAction(&Action{ID: "fixed", Tool: "create_door"})

	require.Len(t, s.Actions, 2)
	assert.NotEmpty(t, s.Actions[0].ID)
	assert.Equal(t, "fixed", s.Actions[1].ID)
}

func TestFork(t *testing.T) {
	s := New("a", "feature/x", "r")
	s.Grant = NewGrant().Allow(OperationDelete, Scope{})
	s.AddAction(&Action{ID: "a1", Tool: "delete_element", Parameters: map[string]any{"element_id": "w1"}})
	require.NoError(t, s.Transition(PhaseExecute))
	require.NoError(t, s.Escalate("Awaiting approval"))
	s.GrantApproval("reviewer")

	f := s.Fork()

	assert.NotEqual(t, s.ID, f.ID)
	assert.Equal(t, PhasePlan, f.Phase)
	assert.True(t, f.ApprovalGranted)
	require.Len(t, f.Actions, 1)
	assert.Equal(t, "a1", f.Actions[0].ID)

	// The fork owns its own copies.
	f.Actions[0].Parameters["element_id"] = "w2"
	f.Grant.Permissions[OperationCreate] = Scope{}
	assert.Equal(t, "w1", s.Actions[0].Parameters["element_id"])
	_, ok := s.Grant.Permissions[OperationCreate]
	assert.False(t, ok)
}

func TestResult_Committed(t *testing.T) {
	assert.True(t, Result{Success: true, EventID: "e1"}.Committed())
	assert.False(t, Result{Success: true}.Committed())
	assert.False(t, Result{Success: true, EventID: "e1", DryRun: true}.Committed())
	assert.False(t, Result{Success: false, EventID: "e1"}.Committed())
}
