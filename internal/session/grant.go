package session

import (
	"fmt"
	"path"
)

// Default caps applied by NewGrant.
const (
	DefaultMaxElementsPerOperation = 1000
	DefaultMaxOperationsPerSession = 100
)

// Scope restricts one operation kind to element categories, levels and
// branch-name patterns. An empty list leaves that dimension unrestricted.
type Scope struct {
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Levels     []string `json:"levels,omitempty" yaml:"levels,omitempty"`
	Branches   []string `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Allows reports whether the scope covers an element of category on level
// in branch. Empty category or level values are only accepted by
// unrestricted dimensions.
func (s Scope) Allows(category, level, branch string) (bool, string) {
	if len(s.Categories) > 0 && !contains(s.Categories, category) {
		return false, fmt.Sprintf("category %q not in scope", category)
	}
	if len(s.Levels) > 0 && !contains(s.Levels, level) {
		return false, fmt.Sprintf("level %q not in scope", level)
	}
	if len(s.Branches) > 0 && !matchAny(s.Branches, branch) {
		return false, fmt.Sprintf("branch %q not in scope", branch)
	}
	return true, ""
}

// Grant is the capability description for one agent.
//
// MaxOperationsPerSession is a hard cap: zero means the agent may not
// commit anything.
type Grant struct {
	Permissions             map[OperationKind]Scope `json:"permissions" yaml:"permissions"`
	RequireApproval         []string                `json:"require_approval,omitempty" yaml:"require_approval,omitempty"`
	MaxElementsPerOperation int                     `json:"max_elements_per_operation" yaml:"max_elements_per_operation"`
	MaxOperationsPerSession int                     `json:"max_operations_per_session" yaml:"max_operations_per_session"`
}

// NewGrant returns a grant with no permissions and the default caps.
func NewGrant() *Grant {
	return &Grant{
		Permissions:             make(map[OperationKind]Scope),
		MaxElementsPerOperation: DefaultMaxElementsPerOperation,
		MaxOperationsPerSession: DefaultMaxOperationsPerSession,
	}
}

// Allow grants kind with scope and returns the grant for chaining.
func (g *Grant) Allow(kind OperationKind, scope Scope) *Grant {
	if g.Permissions == nil {
		g.Permissions = make(map[OperationKind]Scope)
	}
	g.Permissions[kind] = scope
	return g
}

// ScopeFor returns the scope for kind and whether kind is granted at all.
func (g *Grant) ScopeFor(kind OperationKind) (Scope, bool) {
	if g == nil {
		return Scope{}, false
	}
	s, ok := g.Permissions[kind]
	return s, ok
}

// RequiresApproval reports whether tool is listed as always needing approval.
func (g *Grant) RequiresApproval(tool string) bool {
	if g == nil {
		return false
	}
	return contains(g.RequireApproval, tool)
}

// Clone returns a deep copy.
func (g *Grant) Clone() *Grant {
	if g == nil {
		return nil
	}
	c := *g
	c.Permissions = make(map[OperationKind]Scope, len(g.Permissions))
	for k, s := range g.Permissions {
		c.Permissions[k] = Scope{
			Categories: append([]string(nil), s.Categories...),
			Levels:     append([]string(nil), s.Levels...),
			Branches:   append([]string(nil), s.Branches...),
		}
	}
	c.RequireApproval = append([]string(nil), g.RequireApproval...)
	return &c
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == "*" || item == v {
			return true
		}
	}
	return false
}

// matchAny matches branch against glob patterns such as "feature/*".
// A malformed pattern never matches.
func matchAny(patterns []string, branch string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, branch); err == nil && ok {
			return true
		}
	}
	return false
}
