package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/grants"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

type staticGrants map[string]*session.Grant

func (g staticGrants) Get(agentID string) (*session.Grant, error) {
	if grant, ok := g[agentID]; ok {
		return grant.Clone(), nil
	}
	return nil, grants.ErrNoGrant
}

func setupSession(t *testing.T, store *audit.Store, src GrantSource) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server, err := NewServer(nil, store, src)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-agent", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, tool string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

func TestNewServer_RequiresStore(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.ErrorContains(t, err, "audit store is required")
}

func TestServer_ListsTools(t *testing.T) {
	cs := setupSession(t, audit.NewStore(nil), nil)

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolCatalog, ToolPlanVerify, ToolAuditQuery, ToolConstitution, ToolEscalationResponse}, names)
}

func TestToolCatalog(t *testing.T) {
	cs := setupSession(t, audit.NewStore(nil), nil)

	var all catalogOutput
	call(t, cs, ToolCatalog, nil, &all)
	assert.Equal(t, toolcatalog.Entries(), all.Entries)

	var one catalogOutput
	call(t, cs, ToolCatalog, map[string]any{"tool": "delete_element"}, &one)
	require.Len(t, one.Entries, 1)
	assert.Equal(t, session.OperationDelete, one.Entries[0].Operation)
	assert.True(t, one.Entries[0].Destructive)

	res := call(t, cs, ToolCatalog, map[string]any{"tool": "levitate_building"}, nil)
	assert.True(t, res.IsError)
}

func TestPlanVerify(t *testing.T) {
	src := staticGrants{
		"architect": session.NewGrant().Allow(session.OperationCreate, session.Scope{}),
	}
	cs := setupSession(t, audit.NewStore(nil), src)

	wall := map[string]any{
		"tool":      "create_wall",
		"reasoning": "corridor boundary",
		"parameters": map[string]any{
			"start": []any{0, 0}, "end": []any{12, 0}, "height": 3, "thickness": 0.2,
		},
	}

	var clean planVerifyOutput
	call(t, cs, ToolPlanVerify, map[string]any{
		"agent_id": "architect",
		"request":  "east corridor",
		"branch":   "feature/east",
		"actions":  []any{wall},
	}, &clean)
	assert.True(t, clean.OK)
	assert.True(t, clean.HasGrant)
	assert.Empty(t, clean.Violations)
	assert.Len(t, clean.Hash, 64)

	var dirty planVerifyOutput
	call(t, cs, ToolPlanVerify, map[string]any{
		"agent_id": "architect",
		"actions": []any{
			wall,
			map[string]any{"tool": "delete_element", "reasoning": "cleanup", "parameters": map[string]any{"element_id": "w9"}},
		},
	}, &dirty)
	assert.False(t, dirty.OK)
	assert.True(t, dirty.Blocking)
	rules := map[string]string{}
	for _, v := range dirty.Violations {
		rules[v.Rule] = v.Severity
	}
	assert.Equal(t, string(constitution.SeverityBlock), rules[constitution.RuleSkippedApproval])
	assert.Equal(t, string(constitution.SeverityWarn), rules[constitution.RuleOutOfScopeOperation])

	var unknownAgent planVerifyOutput
	call(t, cs, ToolPlanVerify, map[string]any{"agent_id": "intern", "actions": []any{wall}}, &unknownAgent)
	assert.False(t, unknownAgent.HasGrant)
	assert.True(t, unknownAgent.OK, "missing grants only warn")
	require.NotEmpty(t, unknownAgent.Violations)

	res := call(t, cs, ToolPlanVerify, map[string]any{"agent_id": "", "actions": []any{wall}}, nil)
	assert.True(t, res.IsError)
}

func TestAuditQuery(t *testing.T) {
	store := audit.NewStore(nil)
	ctx := context.Background()
	for _, tool := range []string{"create_wall", "create_door", "create_wall"} {
		store.Append(ctx, audit.Entry{SessionID: "s1", AgentID: "architect", Tool: tool, Action: tool, Success: true, DryRun: true, Phase: "execute"})
	}
	store.Append(ctx, audit.Entry{SessionID: "s2", AgentID: "reviewer", Tool: "detect_clashes", Action: "detect_clashes", Success: true, DryRun: true, Phase: "execute"})
	cs := setupSession(t, store, nil)

	var walls auditQueryOutput
	call(t, cs, ToolAuditQuery, map[string]any{"agent_id": "architect", "tool": "create_wall"}, &walls)
	assert.Equal(t, 2, walls.Count)
	assert.Len(t, walls.Entries, 2)

	var newest auditQueryOutput
	call(t, cs, ToolAuditQuery, map[string]any{"session_id": "s1", "limit": 1}, &newest)
	assert.Equal(t, 3, newest.Count)
	require.Len(t, newest.Entries, 1)
	assert.Equal(t, "create_wall", newest.Entries[0].Tool)
	assert.NotEmpty(t, newest.Entries[0].Timestamp)

	var all auditQueryOutput
	call(t, cs, ToolAuditQuery, nil, &all)
	assert.Equal(t, 4, all.Count)

	res := call(t, cs, ToolAuditQuery, map[string]any{"limit": -1}, nil)
	assert.True(t, res.IsError)
}

func TestConstitutionTools(t *testing.T) {
	cs := setupSession(t, audit.NewStore(nil), nil)

	var out constitutionOutput
	call(t, cs, ToolConstitution, nil, &out)
	assert.Len(t, out.Rules, len(constitution.Rules()))
	assert.Len(t, out.Escalations, len(constitution.Escalations()))

	var resp escalationResponseOutput
	call(t, cs, ToolEscalationResponse, map[string]any{"situation": string(constitution.SituationRateLimit)}, &resp)
	want, err := constitution.EscalationResponse(constitution.SituationRateLimit)
	require.NoError(t, err)
	assert.Equal(t, want, resp.Response)

	res := call(t, cs, ToolEscalationResponse, map[string]any{"situation": "boredom"}, nil)
	assert.True(t, res.IsError)
}
