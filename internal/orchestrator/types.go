package orchestrator

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/designgov/internal/session"
)

// Sentinel errors.
var (
	// ErrUnknownPhase is returned when a session is in a phase with no handler.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrNotResumable is returned by Resume for sessions that cannot be re-driven.
	ErrNotResumable = errors.New("session not resumable")
)

// ToolExecutor invokes a tool on its target server. A dry run must not
// mutate the model.
type ToolExecutor interface {
	Execute(ctx context.Context, server, tool string, params map[string]any, dryRun bool) (session.Result, error)
}

// Planner produces the planned actions for a session.
type Planner interface {
	Plan(ctx context.Context, st *session.State) ([]*session.Action, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, st *session.State) ([]*session.Action, error)

// Plan calls f.
func (f PlannerFunc) Plan(ctx context.Context, st *session.State) ([]*session.Action, error) {
	return f(ctx, st)
}

// Validator inspects a session after its dry runs and reports findings.
type Validator interface {
	Validate(ctx context.Context, st *session.State) ([]session.Finding, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, st *session.State) ([]session.Finding, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, st *session.State) ([]session.Finding, error) {
	return f(ctx, st)
}

// PhaseProgress reports one completed phase handler.
type PhaseProgress struct {
	SessionID string        `json:"session_id"`
	From      session.Phase `json:"from"`
	To        session.Phase `json:"to"`
	Message   string        `json:"message"`
}

// ProgressCallback receives progress updates during a run.
type ProgressCallback func(progress PhaseProgress)

// phaseHandler advances st out of its current phase.
type phaseHandler func(ctx context.Context, st *session.State) error
