// Package constitution holds the fixed set of behaviors an agent must never
// exhibit, independent of any permission grant.
//
// One rule table serves two consumers. Rules marked Inline are evaluated
// by the governance middleware before every action (CheckInline). The
// Enforcer evaluates every rule, including the non-inline ones, over single
// actions or whole plans and accumulates what it finds for later
// inspection.
//
// CheckInline ignores the action's DryRun flag: a destructive or merge
// action without approval is always denied. CheckInlineDryRun is the
// simulation entry point. It skips the approval-gated rules so an action
// can be dry-run before approval is granted, and the orchestrator re-checks
// the same action with CheckInline at commit time.
package constitution

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// Severity grades a violation.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Rule identifiers.
const (
	RuleInventedGeometry      = "invented_geometry"
	RuleSuppressedAudit       = "suppressed_audit"
	RuleSkippedApproval       = "skipped_approval"
	RuleUnauthorizedAutoMerge = "unauthorized_auto_merge"
	RuleOutOfScopeOperation   = "out_of_scope_operation"
)

// Rule is one forbidden behavior.
type Rule struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Inline      bool     `json:"inline"`

	// ApprovalGated rules are deferred to commit for dry runs.
	ApprovalGated bool `json:"approval_gated"`

	// violated returns a detail string when the action breaks the rule.
	violated func(st *session.State, a *session.Action) (string, bool)
}

var rules = []Rule{
	{
		ID:          RuleInventedGeometry,
		Description: "Never invent geometry: create and modify actions must carry every structurally required parameter",
		Severity:    SeverityBlock,
		violated:    inventedGeometry,
	},
	{
		ID:          RuleSuppressedAudit,
		Description: "Never suppress the audit trail: every non-read action must state its reasoning",
		Severity:    SeverityBlock,
		Inline:      true,
		violated:    suppressedAudit,
	},
	{
		ID:            RuleSkippedApproval,
		Description:   "Never skip approval: destructive operations require human approval",
		Severity:      SeverityBlock,
		Inline:        true,
		ApprovalGated: true,
		violated:      skippedApproval,
	},
	{
		ID:            RuleUnauthorizedAutoMerge,
		Description:   "Never auto-merge: branch merges require human approval",
		Severity:      SeverityBlock,
		Inline:        true,
		ApprovalGated: true,
		violated:      unauthorizedMerge,
	},
	{
		ID:          RuleOutOfScopeOperation,
		Description: "Never operate outside the granted scope",
		Severity:    SeverityWarn,
		violated:    outOfScope,
	},
}

// Rules returns a copy of the rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// CheckInline evaluates the inline rules in table order and reports the
// first violation.
func CheckInline(st *session.State, a *session.Action) (bool, string) {
	return checkInline(st, a, false)
}

// CheckInlineDryRun is CheckInline for a simulated action: approval-gated
// rules are skipped.
func CheckInlineDryRun(st *session.State, a *session.Action) (bool, string) {
	return checkInline(st, a, true)
}

func checkInline(st *session.State, a *session.Action, dryRun bool) (bool, string) {
	for _, r := range rules {
		if !r.Inline || (dryRun && r.ApprovalGated) {
			continue
		}
		if detail, bad := r.violated(st, a); bad {
			return false, fmt.Sprintf("Constitution violation (%s): %s", r.ID, detail)
		}
	}
	return true, ""
}

// OperationOf returns the action's operation kind, classifying the tool
// when the planner left it empty. Unknown tools yield "".
func OperationOf(a *session.Action) session.OperationKind {
	if a.Operation != "" {
		return a.Operation
	}
	kind, err := toolcatalog.Classify(a.Tool)
	if err != nil {
		return ""
	}
	return kind
}

func inventedGeometry(_ *session.State, a *session.Action) (string, bool) {
	switch OperationOf(a) {
	case session.OperationCreate, session.OperationModify:
	default:
		return "", false
	}
	var missing []string
	for _, p := range toolcatalog.RequiredParams(a.Tool) {
		if !a.HasParam(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return "", false
	}
	return fmt.Sprintf("%s is missing required parameters: %s", a.Tool, strings.Join(missing, ", ")), true
}

func suppressedAudit(_ *session.State, a *session.Action) (string, bool) {
	if OperationOf(a) == session.OperationRead {
		return "", false
	}
	if strings.TrimSpace(a.Reasoning) != "" {
		return "", false
	}
	return fmt.Sprintf("%s has no reasoning", a.Tool), true
}

func skippedApproval(st *session.State, a *session.Action) (string, bool) {
	if !toolcatalog.IsDestructive(a.Tool) || approved(st) {
		return "", false
	}
	return fmt.Sprintf("%s is destructive and approval has not been granted", a.Tool), true
}

func unauthorizedMerge(st *session.State, a *session.Action) (string, bool) {
	if !toolcatalog.IsMerge(a.Tool) || approved(st) {
		return "", false
	}
	return fmt.Sprintf("%s merges a branch and approval has not been granted", a.Tool), true
}

func outOfScope(st *session.State, a *session.Action) (string, bool) {
	if st == nil || st.Grant == nil {
		return "no permission grant configured", true
	}
	kind := OperationOf(a)
	if _, ok := st.Grant.ScopeFor(kind); !ok {
		return fmt.Sprintf("operation %q is not granted", kind), true
	}
	return "", false
}

func approved(st *session.State) bool {
	return st != nil && st.ApprovalGranted
}
