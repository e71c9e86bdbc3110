package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designgov/internal/plan"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	toolsJSON = false
	verifyPlanPath, verifyGrantsPath, verifyAgent = "", "", ""
	verifyApproved, verifyJSON = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const goodPlan = `
request: corridor
branch: feature/east
actions:
  - tool: create_wall
    reasoning: corridor boundary
    parameters: {start: [0, 0], end: [12, 0], height: 3, thickness: 0.2, category: wall}
`

const destructivePlan = `
request: demolish
branch: main
actions:
  - tool: delete_element
    reasoning: obsolete partition
    parameters: {element_id: w9}
`

func TestToolsCommand(t *testing.T) {
	out, err := execute(t, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "TOOL")
	assert.Contains(t, out, "delete_element")

	out, err = execute(t, "tools", "--json")
	require.NoError(t, err)
	var entries []toolcatalog.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Equal(t, toolcatalog.Entries(), entries)
}

func TestVerifyCommand(t *testing.T) {
	t.Run("clean plan", func(t *testing.T) {
		out, err := execute(t, "verify", "--plan", writeFile(t, "plan.yaml", goodPlan))
		require.NoError(t, err)
		assert.Contains(t, out, "1 actions")
		assert.Contains(t, out, "ok")
	})

	t.Run("destructive without approval exits 1", func(t *testing.T) {
		out, err := execute(t, "verify", "--plan", writeFile(t, "plan.yaml", destructivePlan))
		var ee *exitError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, 1, ee.code)
		assert.Contains(t, out, "skipped_approval")
	})

	t.Run("approved destructive passes", func(t *testing.T) {
		_, err := execute(t, "verify", "--plan", writeFile(t, "plan.yaml", destructivePlan), "--approved")
		assert.NoError(t, err)
	})

	t.Run("json report with grants", func(t *testing.T) {
		grantsPath := writeFile(t, "grants.yaml", "agents:\n  architect:\n    permissions:\n      read: {}\n")
		out, err := execute(t, "verify", "--plan", writeFile(t, "plan.yaml", goodPlan),
			"--grants", grantsPath, "--agent", "architect", "--json")
		require.NoError(t, err, "out-of-scope only warns")

		var report plan.Report
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Len(t, report.Violations, 1)
		assert.Equal(t, "out_of_scope_operation", report.Violations[0].Rule)
	})

	t.Run("grants need an agent", func(t *testing.T) {
		grantsPath := writeFile(t, "grants.yaml", "agents: {}\n")
		_, err := execute(t, "verify", "--plan", writeFile(t, "plan.yaml", goodPlan), "--grants", grantsPath)
		assert.ErrorContains(t, err, "--agent is required")
	})

	t.Run("plan flag is required", func(t *testing.T) {
		_, err := execute(t, "verify")
		assert.Error(t, err)
	})
}

func TestExitFor(t *testing.T) {
	st := session.New("architect", "main", "r")

	st.Phase = session.PhaseCompleted
	assert.NoError(t, exitFor(st))

	st.Phase = session.PhaseEscalated
	st.EscalationReason = "Awaiting approval: destructive_operation"
	var ee *exitError
	require.True(t, errors.As(exitFor(st), &ee))
	assert.Equal(t, 2, ee.code)
	assert.Contains(t, ee.Error(), "destructive_operation")

	st.Phase = session.PhaseFailed
	require.True(t, errors.As(exitFor(st), &ee))
	assert.Equal(t, 1, ee.code)
}
