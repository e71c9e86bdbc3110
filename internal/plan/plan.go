// Package plan reads plan files and checks them offline against the
// constitution.
//
//	request: add the east corridor walls
//	branch: feature/east-wing
//	actions:
//	  - tool: create_wall
//	    reasoning: corridor boundary from brief section 3
//	    affected_elements: 1
//	    parameters: {start: [0, 0], end: [12, 0], height: 3, thickness: 0.2}
package plan

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/session"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// MaxFileSize bounds a plan file.
const MaxFileSize = 1 << 20

// ErrEmptyTool is returned for actions without a tool name.
var ErrEmptyTool = errors.New("action without tool")

// Plan is a request plus pre-planned actions.
type Plan struct {
	Request string            `yaml:"request" json:"request"`
	Branch  string            `yaml:"branch" json:"branch"`
	Actions []*session.Action `yaml:"actions" json:"actions"`
}

// Parse decodes a plan document.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	for i, a := range p.Actions {
		if a == nil || strings.TrimSpace(a.Tool) == "" {
			return nil, fmt.Errorf("action %d: %w", i, ErrEmptyTool)
		}
	}
	return &p, nil
}

// Load reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat plan file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("plan file %s exceeds %d bytes", path, MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Session builds a PLAN-phase session for agentID holding copies of the
// plan's actions. grant may be nil.
func (p *Plan) Session(agentID string, grant *session.Grant) *session.State {
	st := session.New(agentID, p.Branch, p.Request)
	st.Grant = grant
	for _, a := range p.Actions {
		st.AddAction(a.Clone())
	}
	return st
}

// Report is the outcome of an offline check.
type Report struct {
	SessionID    string                   `json:"session_id"`
	Hash         string                   `json:"determinism_hash"`
	UnknownTools []string                 `json:"unknown_tools"`
	Violations   []constitution.Violation `json:"violations"`
	Blocking     bool                     `json:"blocking"`
}

// OK reports whether the plan can be driven: every tool is known and no
// blocking rule is broken.
func (r *Report) OK() bool {
	return !r.Blocking && len(r.UnknownTools) == 0
}

// Verify classifies every action and runs the whole rule table over the
// plan as agentID would submit it.
func Verify(p *Plan, agentID string, grant *session.Grant, approved bool) (*Report, error) {
	st := p.Session(agentID, grant)
	if approved {
		st.GrantApproval(agentID)
	}

	r := &Report{SessionID: st.ID, UnknownTools: []string{}}
	for _, a := range st.Actions {
		server, err := toolcatalog.Route(a.Tool)
		if err != nil {
			r.UnknownTools = append(r.UnknownTools, a.Tool)
			continue
		}
		a.Server = server
		a.Operation, _ = toolcatalog.Classify(a.Tool)
	}

	enforcer := constitution.NewEnforcer()
	r.Violations = enforcer.VerifyPlan(st)
	if r.Violations == nil {
		r.Violations = []constitution.Violation{}
	}
	r.Blocking = enforcer.HasBlocking()

	hash, err := st.DeterminismHash()
	if err != nil {
		return nil, fmt.Errorf("hash plan: %w", err)
	}
	r.Hash = hash
	return r, nil
}
