package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/designgov/internal/session"
)

// Envelope is the response shape shown to a human reviewing a dry run.
// Null fields are nil pointers so they marshal as JSON null.
type Envelope struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data"`
	EventID   *string       `json:"event_id"`
	Timestamp time.Time     `json:"timestamp"`
	Warnings  []string      `json:"warnings"`
	DryRun    bool          `json:"dry_run"`
	Audit     EnvelopeAudit `json:"audit"`
}

// EnvelopeAudit is the audit block of an Envelope.
type EnvelopeAudit struct {
	UserID    *string `json:"user_id"`
	AgentID   *string `json:"agent_id"`
	Reasoning *string `json:"reasoning"`
}

// DryRunEnvelope wraps a dry-run result. The event id and audit block are
// always null.
func DryRunEnvelope(r session.Result) Envelope {
	warnings := append([]string{}, r.Warnings...)
	return Envelope{
		Success:   r.Success,
		Data:      r.Data,
		Timestamp: time.Now().UTC(),
		Warnings:  warnings,
		DryRun:    true,
	}
}

// Summary describes the outcome of a run in one line.
func Summary(st *session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s %s: %d planned", st.ID, st.Phase, len(st.Actions))

	failed := 0
	for _, r := range st.DryRunResults {
		if !r.Success {
			failed++
		}
	}
	fmt.Fprintf(&b, ", %d dry-run (%d failed)", len(st.DryRunResults), failed)

	committed := 0
	for _, r := range st.CommitResults {
		if r.Committed() {
			committed++
		}
	}
	fmt.Fprintf(&b, ", %d committed", committed)

	switch st.Phase {
	case session.PhaseFailed:
		fmt.Fprintf(&b, "; reason: %s", st.FailureReason)
	case session.PhaseEscalated:
		fmt.Fprintf(&b, "; reason: %s", st.EscalationReason)
	}
	return b.String()
}
