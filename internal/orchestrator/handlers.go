package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// plan populates and classifies the planned actions. Sessions arriving
// with actions (a fork, or a plan file) keep them and skip the planner.
func (o *Orchestrator) plan(ctx context.Context, st *session.State) error {
	if len(st.Actions) == 0 && o.planner != nil {
		actions, err := o.planner.Plan(ctx, st)
		if err != nil {
			return fmt.Errorf("planner: %w", err)
		}
		for _, a := range actions {
			st.AddAction(a)
		}
	}

	for _, a := range st.Actions {
		server, err := toolcatalog.Route(a.Tool)
		if err != nil {
			return fmt.Errorf("action %s: %w", a.ID, err)
		}
		kind, err := toolcatalog.Classify(a.Tool)
		if err != nil {
			return fmt.Errorf("action %s: %w", a.ID, err)
		}
		a.Server = server
		a.Operation = kind

		if kind != session.OperationDelete || st.ApprovalRequired {
			continue
		}
		if required, reason := o.gov.CheckApprovalRequired(ctx, st, a); required {
			st.ApprovalRequired = true
			st.ApprovalReason = reason
			o.logger.Info(ctx, "approval required",
				zap.String("action_id", a.ID),
				zap.String("tool", a.Tool),
				zap.String("reason", reason))
		}
	}

	if o.enforcer != nil {
		for _, v := range o.enforcer.VerifyPlan(st) {
			o.logger.Warn(ctx, "constitution violation in plan",
				zap.String("rule", v.Rule),
				zap.String("severity", string(v.Severity)),
				zap.String("action_id", v.ActionID),
				zap.String("detail", v.Detail))
		}
	}

	return st.Transition(session.PhaseExecute)
}

// execute dry-runs every permitted action. Denied actions get a failed
// result without a tool call. Every action is audited either way.
func (o *Orchestrator) execute(ctx context.Context, st *session.State) error {
	if ok, reason := o.gov.CheckRateLimit(ctx, st); !ok {
		o.logger.Warn(ctx, "rate budget exhausted", zap.String("reason", reason))
		return st.Escalate(reason)
	}

	for _, a := range st.Actions {
		trial := a.Clone()
		trial.DryRun = true

		if ok, reason := o.gov.CheckDryRunPermission(ctx, st, trial); !ok {
			r := session.Result{ActionID: a.ID, Success: false, Error: reason, DryRun: true}
			st.DryRunResults = append(st.DryRunResults, r)
			st.Record(session.EventActionDenied, fmt.Sprintf("%s: %s", a.Tool, reason))
			o.gov.LogAction(ctx, st, trial, r)
			o.logger.Warn(ctx, "action denied",
				zap.String("action_id", a.ID),
				zap.String("tool", a.Tool),
				zap.String("reason", reason))
			continue
		}

		r := o.invoke(ctx, trial, true)
		st.DryRunResults = append(st.DryRunResults, r)
		st.Record(session.EventDryRun, fmt.Sprintf("%s: success=%t", a.Tool, r.Success))
		o.gov.LogAction(ctx, st, trial, r)
		o.logger.Debug(ctx, "dry run",
			zap.String("action_id", a.ID),
			zap.String("tool", a.Tool),
			zap.Bool("success", r.Success))
	}

	return st.Transition(session.PhaseValidate)
}

// validate fails the run on any failed dry run or failed finding, then
// routes to approval or commit.
func (o *Orchestrator) validate(ctx context.Context, st *session.State) error {
	st.ValidationPassed = false

	for _, r := range st.DryRunResults {
		if !r.Success {
			return st.Fail(fmt.Sprintf("Dry run failed for action %s: %s", r.ActionID, r.Error))
		}
	}

	if o.validator != nil {
		findings, err := o.validator.Validate(ctx, st)
		if err != nil {
			return st.Fail(fmt.Sprintf("Validation strategy error: %v", err))
		}
		st.Findings = append(st.Findings, findings...)
		for _, f := range findings {
			if !f.Passed {
				o.logger.Warn(ctx, "validation finding failed",
					zap.String("check", f.Check),
					zap.String("severity", f.Severity),
					zap.String("message", f.Message))
				return st.Fail(fmt.Sprintf("Validation failed: %s: %s", f.Check, f.Message))
			}
		}
	}

	st.ValidationPassed = true
	if st.ApprovalRequired {
		return st.Transition(session.PhaseAwaitingApproval)
	}
	return st.Transition(session.PhaseCommit)
}

// awaitApproval never blocks: a granted approval proceeds, anything else
// escalates.
func (o *Orchestrator) awaitApproval(ctx context.Context, st *session.State) error {
	if st.ApprovalGranted {
		return st.Transition(session.PhaseCommit)
	}
	reason := fmt.Sprintf("Awaiting approval: %s", st.ApprovalReason)
	o.logger.Warn(ctx, "escalating", zap.String("reason", reason))
	return st.Escalate(reason)
}

// commit performs the real invocations. Actions failing the second
// permission check are skipped with a commit_skipped event and a failed
// audit entry. The first failed commit stops the run; earlier commits
// stay in place.
func (o *Orchestrator) commit(ctx context.Context, st *session.State) error {
	for _, a := range st.Actions {
		live := a.Clone()
		live.DryRun = false

		if ok, reason := o.gov.CheckPermission(ctx, st, live); !ok {
			st.Record(session.EventCommitSkipped, fmt.Sprintf("%s: %s", a.Tool, reason))
			o.gov.LogAction(ctx, st, live, session.Result{ActionID: a.ID, Success: false, Error: reason})
			o.logger.Warn(ctx, "commit skipped",
				zap.String("action_id", a.ID),
				zap.String("tool", a.Tool),
				zap.String("reason", reason))
			continue
		}

		r := o.invoke(ctx, live, false)
		st.CommitResults = append(st.CommitResults, r)
		st.OperationCount++
		st.Record(session.EventCommit, fmt.Sprintf("%s: success=%t event=%s", a.Tool, r.Success, r.EventID))
		o.gov.LogAction(ctx, st, live, r)

		if !r.Success {
			o.logger.Error(ctx, "commit failed",
				zap.String("action_id", a.ID),
				zap.String("tool", a.Tool),
				zap.String("error", r.Error))
			return st.Fail(fmt.Sprintf("Commit failed for action %s (%s): %s", a.ID, a.Tool, r.Error))
		}
	}
	return st.Transition(session.PhaseCompleted)
}

// invoke calls the tool executor and normalizes the result so that a
// non-dry-run result carries an event id exactly when it succeeded.
func (o *Orchestrator) invoke(ctx context.Context, a *session.Action, dryRun bool) session.Result {
	r, err := o.tools.Execute(ctx, a.Server, a.Tool, a.Parameters, dryRun)
	if err != nil {
		r = session.Result{Success: false, Error: err.Error()}
	}
	r.ActionID = a.ID
	r.DryRun = dryRun

	switch {
	case dryRun:
		r.EventID = ""
	case r.Success && r.EventID == "":
		r.Success = false
		r.Error = "tool reported success without an event id"
	case !r.Success:
		r.EventID = ""
	}
	return r
}
