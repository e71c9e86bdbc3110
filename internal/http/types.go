package http

import (
	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/constitution"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	AuditEntries int    `json:"audit_entries"`
	SinkErrors   int64  `json:"sink_errors"`
}

// AuditResponse is the response body for GET /api/v1/audit.
type AuditResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// ConstitutionResponse is the response body for GET /api/v1/constitution.
type ConstitutionResponse struct {
	Rules       []constitution.Rule       `json:"rules"`
	Escalations []constitution.Escalation `json:"escalations"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
