package orchestrator

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/designgov/internal/governance"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// Role names a specialized agent.
type Role string

const (
	RoleArchitect Role = "architect"
	RoleValidator Role = "validator"
	RoleReviewer  Role = "reviewer"
)

// ClashTool is the validation tool the validator role plans.
const ClashTool = "detect_clashes"

// Coordinator builds role orchestrators that share one governance
// middleware and one tool executor. The audit store and rate limiter
// behind the middleware are the only state the roles share.
type Coordinator struct {
	gov   *governance.Middleware
	tools ToolExecutor
	opts  []Option
}

// NewCoordinator creates a coordinator. opts apply to every role.
func NewCoordinator(gov *governance.Middleware, tools ToolExecutor, opts ...Option) *Coordinator {
	return &Coordinator{gov: gov, tools: tools, opts: opts}
}

// Architect returns an orchestrator driven by an external planner.
func (c *Coordinator) Architect(planner Planner) *Orchestrator {
	return c.build(WithPlanner(planner))
}

// Validator returns an orchestrator that plans one clash detection per
// element category modified by the committed actions of prior.
func (c *Coordinator) Validator(prior ...*session.State) *Orchestrator {
	return c.build(WithPlanner(ClashPlanner(prior...)))
}

// Reviewer returns an orchestrator judged by an external validator.
func (c *Coordinator) Reviewer(validator Validator) *Orchestrator {
	return c.build(WithValidator(validator))
}

// For returns the orchestrator for role. Architect and reviewer need a
// planner or validator respectively.
func (c *Coordinator) For(role Role, planner Planner, validator Validator, prior ...*session.State) (*Orchestrator, error) {
	switch role {
	case RoleArchitect:
		if planner == nil {
			return nil, fmt.Errorf("role %s needs a planner", role)
		}
		return c.Architect(planner), nil
	case RoleValidator:
		return c.Validator(prior...), nil
	case RoleReviewer:
		if validator == nil {
			return nil, fmt.Errorf("role %s needs a validator", role)
		}
		return c.Reviewer(validator), nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

func (c *Coordinator) build(extra ...Option) *Orchestrator {
	opts := append(append([]Option{}, c.opts...), extra...)
	return New(c.gov, c.tools, opts...)
}

// ClashPlanner plans one ClashTool action per distinct element category
// touched by a committed action in prior, in first-seen order.
func ClashPlanner(prior ...*session.State) Planner {
	return PlannerFunc(func(_ context.Context, _ *session.State) ([]*session.Action, error) {
		var (
			actions []*session.Action
			seen    = map[string]bool{}
		)
		for _, st := range prior {
			byID := make(map[string]*session.Action, len(st.Actions))
			for _, a := range st.Actions {
				byID[a.ID] = a
			}
			for _, r := range st.CommitResults {
				a, ok := byID[r.ActionID]
				if !r.Committed() || !ok {
					continue
				}
				cat := a.Param("category")
				if cat == "" {
					cat = toolcatalog.Category(a.Tool)
				}
				if cat == "" || seen[cat] {
					continue
				}
				seen[cat] = true
				actions = append(actions, &session.Action{
					Tool:       ClashTool,
					Parameters: map[string]any{"category": cat},
					Reasoning:  fmt.Sprintf("check clashes introduced by committed %s changes", cat),
				})
			}
		}
		return actions, nil
	})
}
