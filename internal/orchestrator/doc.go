// Package orchestrator drives agent sessions through the governed workflow.
//
// # Phases
//
//	PLAN → EXECUTE → VALIDATE → (AWAITING_APPROVAL) → COMMIT → COMPLETED
//
// FAILED and ESCALATED absorb from any phase that has an edge to them.
// The driver loop looks up the handler for the current phase and runs it
// until the session is terminal. A phase without a handler fails the run.
//
//   - PLAN calls the Planner (unless the session already carries actions),
//     routes and classifies every action and asks governance whether any
//     delete action needs approval.
//   - EXECUTE checks the rate budget, then dry-runs every action that
//     passes CheckDryRunPermission. Denied actions get a failed result
//     without a tool call.
//   - VALIDATE fails on any failed dry run or failed Validator finding.
//   - AWAITING_APPROVAL never blocks. It proceeds when approval was
//     granted and escalates otherwise.
//   - COMMIT re-checks permission and runs each action for real. The first
//     failed commit fails the run; earlier commits are not rolled back.
//
// Every dry run, denial and commit is written to the governance audit
// store.
//
// # Approval
//
// Approval is state, not a wait. A caller that receives an ESCALATED
// session sets the approval flag and calls Resume, which forks the session
// and runs the fork from PLAN.
//
// # Roles
//
// A Coordinator builds orchestrators sharing one governance middleware and
// tool executor for the architect, validator and reviewer roles.
//
// # Usage
//
//	gov := governance.New(store, limiter)
//	orch := orchestrator.New(gov, executor,
//		orchestrator.WithPlanner(planner),
//		orchestrator.WithLogger(logger),
//	)
//	orch.OnProgress(func(p orchestrator.PhaseProgress) { ... })
//
//	st := session.New("architect", "feature/atrium", "add a wall")
//	st.Grant = grant
//	st, err := orch.Run(ctx, st)
package orchestrator
