// Package governance decides, for every action an agent proposes, whether
// it is permitted, whether it needs human approval and whether the session
// is still within its rate budget, and writes the audit trail.
//
// The audit store and the rate limiter are the only state shared across
// concurrent runs. Both are injected so each process (or test) owns its
// instances.
package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/ratelimit"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// DefaultBulkThreshold is the affected-element count above which an action
// needs approval.
const DefaultBulkThreshold = 50

// Approval reasons.
const (
	ReasonDestructive           = "destructive_operation"
	ReasonBulk                  = "bulk_operation"
	ReasonGrantRequiresApproval = "grant_requires_approval"
)

// Denial and escalation messages.
const (
	MsgNoPermissions       = "No permissions configured"
	MsgSessionLimitReached = "Session operation limit reached"
)

// Middleware composes the constitution, scope evaluation, rate limiting
// and audit logging.
type Middleware struct {
	audit         *audit.Store
	limiter       *ratelimit.SlidingWindow
	bulkThreshold int
	logger        *logging.Logger
	metrics       *Metrics
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithBulkThreshold overrides DefaultBulkThreshold.
func WithBulkThreshold(n int) Option {
	return func(m *Middleware) { m.bulkThreshold = n }
}

// WithLogger sets the decision logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Middleware) { m.logger = l }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) { m.metrics = metrics }
}

// New creates a middleware over store and limiter.
func New(store *audit.Store, limiter *ratelimit.SlidingWindow, opts ...Option) *Middleware {
	m := &Middleware{
		audit:         store,
		limiter:       limiter,
		bulkThreshold: DefaultBulkThreshold,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Audit returns the shared audit store.
func (m *Middleware) Audit() *audit.Store { return m.audit }

// CheckPermission evaluates the inline constitution rules, then the
// session's grant. Without a grant only read actions pass. The action's
// DryRun flag is ignored: destructive and merge actions are denied until
// the session is approved.
func (m *Middleware) CheckPermission(ctx context.Context, st *session.State, a *session.Action) (bool, string) {
	ok, reason := m.checkPermission(st, a, constitution.CheckInline)
	m.decision(ctx, "permission", ok, reason, a)
	return ok, reason
}

// CheckDryRunPermission is CheckPermission for simulating a. Approval-gated
// rules are deferred to the commit-time CheckPermission; scope and caps
// still apply.
func (m *Middleware) CheckDryRunPermission(ctx context.Context, st *session.State, a *session.Action) (bool, string) {
	ok, reason := m.checkPermission(st, a, constitution.CheckInlineDryRun)
	m.decision(ctx, "dry_run_permission", ok, reason, a)
	return ok, reason
}

func (m *Middleware) checkPermission(st *session.State, a *session.Action, inline func(*session.State, *session.Action) (bool, string)) (bool, string) {
	if ok, reason := inline(st, a); !ok {
		return false, reason
	}

	kind := constitution.OperationOf(a)
	if st.Grant == nil {
		if kind == session.OperationRead {
			return true, ""
		}
		return false, MsgNoPermissions
	}

	scope, granted := st.Grant.ScopeFor(kind)
	if !granted {
		if kind == session.OperationRead {
			return true, ""
		}
		return false, fmt.Sprintf("Operation %q not permitted for agent %s", kind, st.AgentID)
	}

	if ok, why := scope.Allows(category(a), a.Param("level"), st.BranchID); !ok {
		return false, "Out of scope: " + why
	}

	return m.CheckElementCap(st, a)
}

// CheckElementCap denies actions touching more elements than the grant
// allows per operation.
func (m *Middleware) CheckElementCap(st *session.State, a *session.Action) (bool, string) {
	if st.Grant == nil {
		return true, ""
	}
	if limit := st.Grant.MaxElementsPerOperation; a.AffectedElements > limit {
		return false, fmt.Sprintf("Affected elements %d exceed the per-operation cap of %d", a.AffectedElements, limit)
	}
	return true, ""
}

// CheckApprovalRequired reports whether a needs human approval and why.
func (m *Middleware) CheckApprovalRequired(ctx context.Context, st *session.State, a *session.Action) (bool, string) {
	var reason string
	switch {
	case toolcatalog.IsDestructive(a.Tool):
		reason = ReasonDestructive
	case a.AffectedElements > m.bulkThreshold:
		reason = ReasonBulk
	case st.Grant.RequiresApproval(a.Tool):
		reason = ReasonGrantRequiresApproval
	default:
		m.logger.Debug(ctx, "no approval required", zap.String("tool", a.Tool))
		return false, ""
	}

	if m.metrics != nil {
		m.metrics.ApprovalsTotal.WithLabelValues(reason).Inc()
	}
	m.logger.Debug(ctx, "approval required", zap.String("tool", a.Tool), zap.String("reason", reason))
	return true, reason
}

// CheckRateLimit enforces the grant's per-session cap, then the per-agent
// sliding window.
func (m *Middleware) CheckRateLimit(ctx context.Context, st *session.State) (bool, string) {
	var (
		ok     bool
		reason string
	)
	if st.Grant != nil && st.OperationCount >= st.Grant.MaxOperationsPerSession {
		ok, reason = false, MsgSessionLimitReached
	} else {
		ok, reason = m.limiter.Check(st.AgentID)
	}

	if !ok && m.metrics != nil {
		m.metrics.RateLimitedTotal.Inc()
	}
	m.decision(ctx, "rate_limit", ok, reason, nil)
	return ok, reason
}

// LogAction appends an audit entry for a and its result and records one
// rate-limiter token for the agent. It runs whatever the outcome.
func (m *Middleware) LogAction(ctx context.Context, st *session.State, a *session.Action, r session.Result) audit.Entry {
	e := m.audit.Append(ctx, audit.Entry{
		SessionID:  st.ID,
		AgentID:    st.AgentID,
		Action:     fmt.Sprintf("%s:%s", constitution.OperationOf(a), a.Tool),
		Tool:       a.Tool,
		Parameters: a.Parameters,
		Success:    r.Success,
		EventID:    r.EventID,
		Reasoning:  a.Reasoning,
		DryRun:     r.DryRun,
		Phase:      string(st.Phase),
	})
	m.limiter.Record(st.AgentID)

	if m.metrics != nil {
		mode := "commit"
		if r.DryRun {
			mode = "dry_run"
		}
		m.metrics.AuditEntries.WithLabelValues(mode).Inc()
	}
	m.logger.Debug(ctx, "action audited",
		zap.String("entry_id", e.ID),
		zap.String("action", e.Action),
		zap.Bool("success", e.Success),
		zap.Bool("dry_run", e.DryRun))
	return e
}

func (m *Middleware) decision(ctx context.Context, check string, ok bool, reason string, a *session.Action) {
	outcome := "allow"
	if !ok {
		outcome = "deny"
	}
	if m.metrics != nil {
		m.metrics.DecisionsTotal.WithLabelValues(check, outcome).Inc()
	}

	fields := []zap.Field{zap.String("check", check), zap.String("outcome", outcome)}
	if a != nil {
		fields = append(fields, zap.String("tool", a.Tool))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	m.logger.Debug(ctx, "governance decision", fields...)
}

// category is the element category an action targets: the "category"
// parameter when given, else the tool's default.
func category(a *session.Action) string {
	if c := a.Param("category"); c != "" {
		return c
	}
	return toolcatalog.Category(a.Tool)
}
