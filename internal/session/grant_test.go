package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope_Allows(t *testing.T) {
	tests := []struct {
		name     string
		scope    Scope
		category string
		level    string
		branch   string
		want     bool
	}{
		{"unrestricted", Scope{}, "wall", "L1", "main", true},
		{"category match", Scope{Categories: []string{"wall", "door"}}, "door", "", "main", true},
		{"category miss", Scope{Categories: []string{"wall"}}, "roof", "", "main", false},
		{"wildcard category", Scope{Categories: []string{"*"}}, "roof", "", "main", true},
		{"level miss", Scope{Levels: []string{"L1"}}, "wall", "L2", "main", false},
		{"empty level restricted", Scope{Levels: []string{"L1"}}, "wall", "", "main", false},
		{"branch glob", Scope{Branches: []string{"feature/*"}}, "wall", "", "feature/atrium", true},
		{"branch glob miss", Scope{Branches: []string{"feature/*"}}, "wall", "", "main", false},
		{"bad pattern", Scope{Branches: []string{"["}}, "wall", "", "main", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := tt.scope.Allows(tt.category, tt.level, tt.branch)
			assert.Equal(t, tt.want, ok)
			if !ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestGrant_Defaults(t *testing.T) {
	g := NewGrant()
	assert.Equal(t, DefaultMaxOperationsPerSession, g.MaxOperationsPerSession)
	assert.Equal(t, DefaultMaxElementsPerOperation, g.MaxElementsPerOperation)

	_, ok := g.ScopeFor(OperationCreate)
	assert.False(t, ok)

	g.Allow(OperationCreate, Scope{Categories: []string{"wall"}})
	s, ok := g.ScopeFor(OperationCreate)
	assert.True(t, ok)
	assert.Equal(t, []string{"wall"}, s.Categories)
}

func TestGrant_NilSafe(t *testing.T) {
	var g *Grant
	_, ok := g.ScopeFor(OperationRead)
	assert.False(t, ok)
	assert.False(t, g.RequiresApproval("delete_element"))
	assert.Nil(t, g.Clone())
}

func TestOperationKind_IsMutating(t *testing.T) {
	assert.True(t, OperationCreate.IsMutating())
	assert.True(t, OperationDelete.IsMutating())
	assert.True(t, OperationExport.IsMutating())
	assert.False(t, OperationRead.IsMutating())
	assert.False(t, OperationValidate.IsMutating())
}
