package session

import (
	"errors"
	"fmt"
)

// Phase is a state of the governance workflow.
type Phase string

const (
	// PhasePlan populates and classifies planned actions.
	PhasePlan Phase = "plan"

	// PhaseExecute dry-runs every planned action.
	PhaseExecute Phase = "execute"

	// PhaseValidate inspects dry-run results and validation findings.
	PhaseValidate Phase = "validate"

	// PhaseAwaitingApproval holds a run that needs human sign-off.
	PhaseAwaitingApproval Phase = "awaiting_approval"

	// PhaseCommit performs the real mutations.
	PhaseCommit Phase = "commit"

	// PhaseCompleted is the successful terminal state.
	PhaseCompleted Phase = "completed"

	// PhaseFailed is the failure terminal state.
	PhaseFailed Phase = "failed"

	// PhaseEscalated is the terminal state requiring external intervention.
	PhaseEscalated Phase = "escalated"
)

// ErrInvalidTransition is returned when a transition is not an edge of the phase graph.
var ErrInvalidTransition = errors.New("invalid phase transition")

// transitions is the fixed directed graph. It has no backward edges.
var transitions = map[Phase][]Phase{
	PhasePlan:             {PhaseExecute, PhaseFailed},
	PhaseExecute:          {PhaseValidate, PhaseEscalated, PhaseFailed},
	PhaseValidate:         {PhaseCommit, PhaseAwaitingApproval, PhaseFailed},
	PhaseAwaitingApproval: {PhaseCommit, PhaseEscalated, PhaseFailed},
	PhaseCommit:           {PhaseCompleted, PhaseFailed},
	PhaseCompleted:        nil,
	PhaseFailed:           nil,
	PhaseEscalated:        nil,
}

// AllPhases returns every phase in graph order.
func AllPhases() []Phase {
	return []Phase{
		PhasePlan, PhaseExecute, PhaseValidate, PhaseAwaitingApproval,
		PhaseCommit, PhaseCompleted, PhaseFailed, PhaseEscalated,
	}
}

// IsTerminal reports whether no transitions leave p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseEscalated
}

// Known reports whether p is a phase of the graph.
func (p Phase) Known() bool {
	_, ok := transitions[p]
	return ok
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to Phase) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, from)
	}
	for _, p := range next {
		if p == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
