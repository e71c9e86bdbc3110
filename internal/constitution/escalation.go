package constitution

import "fmt"

// Situation names a condition an agent must hand to a human.
type Situation string

const (
	SituationAmbiguousIntent         Situation = "ambiguous_intent"
	SituationOutsideScope            Situation = "outside_scope"
	SituationCriticalValidation      Situation = "critical_validation_finding"
	SituationConflictingInstructions Situation = "conflicting_instructions"
	SituationCorruptState            Situation = "corrupt_state"
	SituationRateLimit               Situation = "rate_limit"
)

// Escalation pairs a situation with the response an agent gives.
type Escalation struct {
	Situation Situation `json:"situation"`
	Response  string    `json:"response"`
}

var escalations = []Escalation{
	{SituationAmbiguousIntent, "The request is ambiguous. Please clarify what should change before I plan any operation."},
	{SituationOutsideScope, "This operation is outside my granted scope. A human with the right permissions must perform or authorize it."},
	{SituationCriticalValidation, "Validation reported a critical finding. I have stopped and need a human decision before committing anything."},
	{SituationConflictingInstructions, "The instructions conflict with each other. Please state which one takes precedence."},
	{SituationCorruptState, "The model state looks inconsistent. I have stopped to avoid making it worse; please inspect it."},
	{SituationRateLimit, "I have reached my operation limit. Raise the quota or wait for the window to pass before retrying."},
}

// Escalations returns the escalation table.
func Escalations() []Escalation {
	out := make([]Escalation, len(escalations))
	copy(out, escalations)
	return out
}

// EscalationResponse returns the prescribed response for situation.
func EscalationResponse(situation Situation) (string, error) {
	for _, e := range escalations {
		if e.Situation == situation {
			return e.Response, nil
		}
	}
	return "", fmt.Errorf("unknown escalation situation %q", situation)
}
