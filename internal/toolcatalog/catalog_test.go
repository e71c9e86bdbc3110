package toolcatalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designgov/internal/session"
)

func TestRoute(t *testing.T) {
	server, err := Route("create_wall")
	require.NoError(t, err)
	assert.Equal(t, ServerGeometry, server)

	server, err = Route("detect_clashes")
	require.NoError(t, err)
	assert.Equal(t, ServerValidation, server)

	_, err = Route("summon_dragon")
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		tool string
		want session.OperationKind
	}{
		{"create_wall", session.OperationCreate},
		{"create_sheet", session.OperationCreate},
		{"move_element", session.OperationModify},
		{"merge_branch", session.OperationModify},
		{"export_ifc", session.OperationExport},
		{"delete_element", session.OperationDelete},
		{"get_element", session.OperationRead},
		{"calculate_area", session.OperationRead},
		{"detect_clashes", session.OperationValidate},
		{"validate_model", session.OperationValidate},
		{"check_code_compliance", session.OperationValidate},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, err := Classify(tt.tool)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Classify("summon_dragon")
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestSets_DisjointAndRouted(t *testing.T) {
	for tool := range routes {
		n := 0
		if IsMutating(tool) {
			n++
		}
		if IsDestructive(tool) {
			n++
		}
		if IsReadOnly(tool) {
			n++
		}
		assert.Equal(t, 1, n, "tool %s must be in exactly one set", tool)
	}

	for _, set := range []map[string]struct{}{mutating, destructive, readOnly} {
		for tool := range set {
			_, err := Route(tool)
			assert.NoError(t, err, "tool %s is classified but not routed", tool)
		}
	}
}

func TestRequiredParams_OnlyForMutatingTools(t *testing.T) {
	for tool := range requiredParams {
		assert.True(t, IsMutating(tool), tool)
	}
	assert.Equal(t, []string{"start", "end", "height", "thickness"}, RequiredParams("create_wall"))
	assert.Empty(t, RequiredParams("get_element"))

	// Callers get a copy.
	p := RequiredParams("create_wall")
	p[0] = "x"
	assert.Equal(t, "start", RequiredParams("create_wall")[0])
}

func TestEntries(t *testing.T) {
	entries := Entries()
	assert.Len(t, entries, len(routes))
	assert.Equal(t, ServerDocumentation, entries[0].Server)
	assert.True(t, IsMerge("merge_branch"))
	assert.Equal(t, "wall", Category("create_wall"))
	assert.Equal(t, "", Category("merge_branch"))
}
