// Package session holds the mutable record threaded through one governance
// workflow run: identity, permission grant, request, plan, results, approval
// flags and the append-only event history.
//
// A State is owned by a single orchestrator run and is never shared across
// concurrent runs, so it carries no locks.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds recorded in the history.
const (
	EventPhaseTransition = "phase_transition"
	EventActionPlanned   = "action_planned"
	EventActionDenied    = "action_denied"
	EventDryRun          = "dry_run"
	EventCommit          = "commit"
	EventCommitSkipped   = "commit_skipped"
	EventApproval        = "approval"
	EventEscalation      = "escalation"
	EventFailure         = "failure"
	EventFork            = "fork"
)

// Event is one entry of the session history.
type Event struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Phase  Phase     `json:"phase"`
	Detail string    `json:"detail,omitempty"`
}

// State is the record of one workflow run.
type State struct {
	ID       string `json:"session_id"`
	AgentID  string `json:"agent_id"`
	BranchID string `json:"branch_id"`
	Phase    Phase  `json:"phase"`
	Grant    *Grant `json:"grant,omitempty"`

	Request string         `json:"request"`
	Intent  map[string]any `json:"intent,omitempty"`

	Actions       []*Action `json:"actions"`
	DryRunResults []Result  `json:"dry_run_results"`
	CommitResults []Result  `json:"commit_results"`
	Findings      []Finding `json:"findings"`

	ValidationPassed bool   `json:"validation_passed"`
	ApprovalRequired bool   `json:"approval_required"`
	ApprovalReason   string `json:"approval_reason,omitempty"`
	ApprovalGranted  bool   `json:"approval_granted"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`

	OperationCount int       `json:"operation_count"`
	CreatedAt      time.Time `json:"created_at"`

	events []Event
}

// New creates a session in PLAN for agentID working on branchID.
func New(agentID, branchID, request string) *State {
	return &State{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		BranchID:  branchID,
		Phase:     PhasePlan,
		Request:   request,
		CreatedAt: time.Now().UTC(),
	}
}

// Record appends an event to the history. The history only grows.
func (s *State) Record(kind, detail string) {
	s.events = append(s.events, Event{
		At:     time.Now().UTC(),
		Kind:   kind,
		Phase:  s.Phase,
		Detail: detail,
	})
}

// Events returns a copy of the event history.
func (s *State) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Transition moves the session along an edge of the phase graph.
func (s *State) Transition(to Phase) error {
	if err := CanTransition(s.Phase, to); err != nil {
		return err
	}
	from := s.Phase
	s.Phase = to
	s.Record(EventPhaseTransition, fmt.Sprintf("%s -> %s", from, to))
	return nil
}

// PhasePath returns the phases visited so far, starting from PLAN.
func (s *State) PhasePath() []Phase {
	path := []Phase{PhasePlan}
	for _, e := range s.events {
		if e.Kind == EventPhaseTransition {
			path = append(path, e.Phase)
		}
	}
	return path
}

// AddAction appends a planned action, assigning an id when missing.
func (s *State) AddAction(a *Action) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	s.Actions = append(s.Actions, a)
	s.Record(EventActionPlanned, a.Tool)
}

// Escalate records reason and moves to ESCALATED.
func (s *State) Escalate(reason string) error {
	s.EscalationReason = reason
	s.Record(EventEscalation, reason)
	return s.Transition(PhaseEscalated)
}

// Fail records reason and moves to FAILED.
func (s *State) Fail(reason string) error {
	s.FailureReason = reason
	s.Record(EventFailure, reason)
	return s.Transition(PhaseFailed)
}

// GrantApproval flips the approval flag. It is the external signal a
// caller sets before re-driving a run.
func (s *State) GrantApproval(approver string) {
	s.ApprovalGranted = true
	s.Record(EventApproval, "granted by "+approver)
}

// Fork returns a fresh session in PLAN carrying the request, branch,
// grant, plan and approval flags of s. Action ids are preserved so audit
// entries of both runs correlate.
func (s *State) Fork() *State {
	f := New(s.AgentID, s.BranchID, s.Request)
	f.Grant = s.Grant.Clone()
	if s.Intent != nil {
		f.Intent = make(map[string]any, len(s.Intent))
		for k, v := range s.Intent {
			f.Intent[k] = v
		}
	}
	for _, a := range s.Actions {
		f.Actions = append(f.Actions, a.Clone())
	}
	f.ApprovalRequired = s.ApprovalRequired
	f.ApprovalReason = s.ApprovalReason
	f.ApprovalGranted = s.ApprovalGranted
	f.Record(EventFork, "forked from "+s.ID)
	return f
}

// DryRunFailed reports whether any dry-run result failed.
func (s *State) DryRunFailed() bool {
	for _, r := range s.DryRunResults {
		if !r.Success {
			return true
		}
	}
	return false
}
