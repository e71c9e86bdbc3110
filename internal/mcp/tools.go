package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/grants"
	"github.com/fyrsmithlabs/designgov/internal/plan"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// Tool names.
const (
	ToolCatalog            = "tool_catalog"
	ToolPlanVerify         = "plan_verify"
	ToolAuditQuery         = "audit_query"
	ToolConstitution       = "constitution_rules"
	ToolEscalationResponse = "escalation_response"
)

func (s *Server) registerTools() {
	s.registerCatalogTool()
	s.registerPlanVerifyTool()
	s.registerAuditQueryTool()
	s.registerConstitutionTools()
}

// ===== tool_catalog =====

type catalogInput struct {
	Tool string `json:"tool,omitempty" jsonschema:"Tool name to look up; empty lists the whole catalog"`
}

type catalogOutput struct {
	Entries []toolcatalog.Entry `json:"entries" jsonschema:"Routing and classification rows"`
}

func (s *Server) registerCatalogTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCatalog,
		Description: "Show which target server a tool routes to and how its operation is classified",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args catalogInput) (*mcp.CallToolResult, catalogOutput, error) {
		all := toolcatalog.Entries()
		if args.Tool == "" {
			return nil, catalogOutput{Entries: all}, nil
		}
		for _, e := range all {
			if e.Tool == args.Tool {
				return nil, catalogOutput{Entries: []toolcatalog.Entry{e}}, nil
			}
		}
		return nil, catalogOutput{}, fmt.Errorf("%w: %s", toolcatalog.ErrUnknownTool, args.Tool)
	})
}

// ===== plan_verify =====

type planAction struct {
	ID               string         `json:"id,omitempty" jsonschema:"Action id; generated when empty"`
	Tool             string         `json:"tool" jsonschema:"Tool to invoke"`
	Parameters       map[string]any `json:"parameters,omitempty" jsonschema:"Tool parameters"`
	Reasoning        string         `json:"reasoning,omitempty" jsonschema:"Why the action is needed"`
	AffectedElements int            `json:"affected_elements,omitempty" jsonschema:"Number of model elements the action touches"`
}

type planVerifyInput struct {
	AgentID  string       `json:"agent_id" jsonschema:"Agent that would submit the plan"`
	Request  string       `json:"request,omitempty" jsonschema:"Originating request text"`
	Branch   string       `json:"branch,omitempty" jsonschema:"Design branch the plan targets"`
	Actions  []planAction `json:"actions" jsonschema:"Planned actions in order"`
	Approved bool         `json:"approved,omitempty" jsonschema:"Check as if human approval had been granted"`
}

type violationOutput struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	ActionID string `json:"action_id,omitempty"`
	Tool     string `json:"tool"`
	Detail   string `json:"detail"`
}

type planVerifyOutput struct {
	OK           bool              `json:"ok" jsonschema:"True when every tool is known and no blocking rule is broken"`
	Blocking     bool              `json:"blocking"`
	Hash         string            `json:"determinism_hash"`
	HasGrant     bool              `json:"has_grant"`
	UnknownTools []string          `json:"unknown_tools"`
	Violations   []violationOutput `json:"violations"`
}

func (s *Server) registerPlanVerifyTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolPlanVerify,
		Description: "Check a plan against the constitution and the agent's grant without executing anything",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planVerifyInput) (*mcp.CallToolResult, planVerifyOutput, error) {
		if args.AgentID == "" {
			return nil, planVerifyOutput{}, errors.New("agent_id is required")
		}

		p := &plan.Plan{Request: args.Request, Branch: args.Branch}
		for i, a := range args.Actions {
			if a.Tool == "" {
				return nil, planVerifyOutput{}, fmt.Errorf("action %d: %w", i, plan.ErrEmptyTool)
			}
			p.Actions = append(p.Actions, &session.Action{
				ID:               a.ID,
				Tool:             a.Tool,
				Parameters:       a.Parameters,
				Reasoning:        a.Reasoning,
				AffectedElements: a.AffectedElements,
			})
		}

		grant, err := s.grantFor(args.AgentID)
		if err != nil {
			return nil, planVerifyOutput{}, err
		}

		report, err := plan.Verify(p, args.AgentID, grant, args.Approved)
		if err != nil {
			return nil, planVerifyOutput{}, err
		}

		out := planVerifyOutput{
			OK:           report.OK(),
			Blocking:     report.Blocking,
			Hash:         report.Hash,
			HasGrant:     grant != nil,
			UnknownTools: report.UnknownTools,
			Violations:   make([]violationOutput, 0, len(report.Violations)),
		}
		for _, v := range report.Violations {
			out.Violations = append(out.Violations, violationOutput{
				Rule:     v.Rule,
				Severity: string(v.Severity),
				ActionID: v.ActionID,
				Tool:     v.Tool,
				Detail:   v.Detail,
			})
		}

		s.logger.Debug(ctx, "plan verified",
			zap.String("agent_id", args.AgentID),
			zap.Int("actions", len(p.Actions)),
			zap.Int("violations", len(out.Violations)),
			zap.Bool("ok", out.OK))
		return nil, out, nil
	})
}

// grantFor returns nil without error for agents that have no grant.
func (s *Server) grantFor(agentID string) (*session.Grant, error) {
	if s.grants == nil {
		return nil, nil
	}
	g, err := s.grants.Get(agentID)
	if errors.Is(err, grants.ErrNoGrant) {
		return nil, nil
	}
	return g, err
}

// ===== audit_query =====

type auditQueryInput struct {
	AgentID   string `json:"agent_id,omitempty" jsonschema:"Only entries written for this agent"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Only entries of this session"`
	Tool      string `json:"tool,omitempty" jsonschema:"Only entries for this tool"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Return at most this many of the newest matches"`
}

type auditEntryOutput struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Tool      string `json:"tool"`
	Phase     string `json:"phase"`
	Success   bool   `json:"success"`
	DryRun    bool   `json:"dry_run"`
	EventID   string `json:"event_id,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

type auditQueryOutput struct {
	Entries []auditEntryOutput `json:"entries"`
	Count   int                `json:"count" jsonschema:"Number of matches before the limit was applied"`
}

func (s *Server) registerAuditQueryTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolAuditQuery,
		Description: "Read the audit log filtered by agent, session or tool, oldest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args auditQueryInput) (*mcp.CallToolResult, auditQueryOutput, error) {
		if args.Limit < 0 {
			return nil, auditQueryOutput{}, errors.New("limit must not be negative")
		}
		entries := s.store.Query(audit.Filter{
			AgentID:   args.AgentID,
			SessionID: args.SessionID,
			Tool:      args.Tool,
		})
		out := auditQueryOutput{Count: len(entries)}
		if args.Limit > 0 && len(entries) > args.Limit {
			entries = entries[len(entries)-args.Limit:]
		}

		out.Entries = make([]auditEntryOutput, 0, len(entries))
		for _, e := range entries {
			out.Entries = append(out.Entries, auditEntryOutput{
				ID:        e.ID,
				Timestamp: e.Timestamp.Format(time.RFC3339Nano),
				SessionID: e.SessionID,
				AgentID:   e.AgentID,
				Tool:      e.Tool,
				Phase:     e.Phase,
				Success:   e.Success,
				DryRun:    e.DryRun,
				EventID:   e.EventID,
				Reasoning: e.Reasoning,
			})
		}
		return nil, out, nil
	})
}

// ===== constitution =====

type constitutionInput struct{}

type ruleOutput struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Inline      bool   `json:"inline" jsonschema:"Checked on every governance decision"`
}

type escalationOutput struct {
	Situation string `json:"situation"`
	Response  string `json:"response"`
}

type constitutionOutput struct {
	Rules       []ruleOutput       `json:"rules"`
	Escalations []escalationOutput `json:"escalations"`
}

type escalationInput struct {
	Situation string `json:"situation" jsonschema:"Situation name, e.g. outside_scope or rate_limit"`
}

type escalationResponseOutput struct {
	Response string `json:"response"`
}

func (s *Server) registerConstitutionTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolConstitution,
		Description: "List the constitution rules and the escalation table",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ constitutionInput) (*mcp.CallToolResult, constitutionOutput, error) {
		var out constitutionOutput
		for _, r := range constitution.Rules() {
			out.Rules = append(out.Rules, ruleOutput{
				ID:          r.ID,
				Description: r.Description,
				Severity:    string(r.Severity),
				Inline:      r.Inline,
			})
		}
		for _, e := range constitution.Escalations() {
			out.Escalations = append(out.Escalations, escalationOutput{
				Situation: string(e.Situation),
				Response:  e.Response,
			})
		}
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolEscalationResponse,
		Description: "Return the prescribed response for a situation that must be handed to a human",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args escalationInput) (*mcp.CallToolResult, escalationResponseOutput, error) {
		resp, err := constitution.EscalationResponse(constitution.Situation(args.Situation))
		if err != nil {
			return nil, escalationResponseOutput{}, err
		}
		return nil, escalationResponseOutput{Response: resp}, nil
	})
}
