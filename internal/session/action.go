package session

// OperationKind classifies what a tool invocation does to the design model.
type OperationKind string

const (
	OperationRead     OperationKind = "read"
	OperationCreate   OperationKind = "create"
	OperationModify   OperationKind = "modify"
	OperationDelete   OperationKind = "delete"
	OperationExport   OperationKind = "export"
	OperationValidate OperationKind = "validate"
)

// IsMutating reports whether the operation changes persistent state.
func (k OperationKind) IsMutating() bool {
	switch k {
	case OperationCreate, OperationModify, OperationDelete, OperationExport:
		return true
	}
	return false
}

// Action is one proposed tool invocation.
//
// Server and Operation are filled in by the orchestrator during PLAN;
// every other field is owned by the planning strategy.
type Action struct {
	ID               string         `json:"id" yaml:"id"`
	Tool             string         `json:"tool" yaml:"tool"`
	Server           string         `json:"server,omitempty" yaml:"server,omitempty"`
	Parameters       map[string]any `json:"parameters" yaml:"parameters"`
	Operation        OperationKind  `json:"operation,omitempty" yaml:"operation,omitempty"`
	Reasoning        string         `json:"reasoning" yaml:"reasoning"`
	DryRun           bool           `json:"dry_run" yaml:"dry_run"`
	AffectedElements int            `json:"affected_elements" yaml:"affected_elements"`
}

// Param returns the string form of a parameter, or "" when absent.
func (a *Action) Param(key string) string {
	if a == nil || a.Parameters == nil {
		return ""
	}
	if s, ok := a.Parameters[key].(string); ok {
		return s
	}
	return ""
}

// HasParam reports whether a parameter is present and non-nil.
func (a *Action) HasParam(key string) bool {
	if a == nil || a.Parameters == nil {
		return false
	}
	v, ok := a.Parameters[key]
	return ok && v != nil
}

// Clone returns a copy with its own parameter map.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	c := *a
	if a.Parameters != nil {
		c.Parameters = make(map[string]any, len(a.Parameters))
		for k, v := range a.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}

// Result is the outcome of one tool invocation.
//
// EventID is set only when a non-dry-run invocation succeeded; an empty
// EventID means no write happened.
type Result struct {
	ActionID string   `json:"action_id"`
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	EventID  string   `json:"event_id,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
	DryRun   bool     `json:"dry_run"`
}

// Committed reports whether the result proves a write happened.
func (r Result) Committed() bool {
	return !r.DryRun && r.Success && r.EventID != ""
}

// Finding is one validation finding produced by a validation strategy.
type Finding struct {
	Check    string         `json:"check"`
	Passed   bool           `json:"passed"`
	Severity string         `json:"severity,omitempty"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}
