package constitution

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/designgov/internal/session"
)

// Violation is one rule broken by one action.
type Violation struct {
	Rule        string    `json:"rule"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	ActionID    string    `json:"action_id,omitempty"`
	Tool        string    `json:"tool"`
	Detail      string    `json:"detail"`
	At          time.Time `json:"at"`
}

// Enforcer evaluates every rule and keeps the violations it finds until
// Reset. It is safe for concurrent use.
type Enforcer struct {
	mu         sync.Mutex
	violations []Violation
}

// NewEnforcer returns an enforcer with no recorded violations.
func NewEnforcer() *Enforcer {
	return &Enforcer{}
}

// Verify checks a against every rule, records and returns the violations.
func (e *Enforcer) Verify(st *session.State, a *session.Action) []Violation {
	var found []Violation
	for _, r := range rules {
		if detail, bad := r.violated(st, a); bad {
			found = append(found, Violation{
				Rule:        r.ID,
				Description: r.Description,
				Severity:    r.Severity,
				ActionID:    a.ID,
				Tool:        a.Tool,
				Detail:      detail,
				At:          time.Now().UTC(),
			})
		}
	}

	if len(found) > 0 {
		e.mu.Lock()
		e.violations = append(e.violations, found...)
		e.mu.Unlock()
	}
	return found
}

// VerifyPlan checks every planned action of st.
func (e *Enforcer) VerifyPlan(st *session.State) []Violation {
	var found []Violation
	for _, a := range st.Actions {
		found = append(found, e.Verify(st, a)...)
	}
	return found
}

// Violations returns a copy of everything recorded so far.
func (e *Enforcer) Violations() []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Violation, len(e.violations))
	copy(out, e.violations)
	return out
}

// HasBlocking reports whether any recorded violation blocks.
func (e *Enforcer) HasBlocking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Reset discards recorded violations.
func (e *Enforcer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.violations = nil
}
