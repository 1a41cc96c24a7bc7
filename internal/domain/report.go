package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/contract-insight/constants"
)

// PipelineVersion tags every report so readers can tell which pipeline
// revision produced it.
const PipelineVersion = "1.0"

// RedactionEntry records one masked region. Span offsets reference the
// redacted text, not the original, so the map can be audited without
// exposing the removed value.
type RedactionEntry struct {
	Span  Span                 `json:"span"`
	Type  constants.EntityType `json:"type"`
	Token string               `json:"token"`
}

// RedactionMap is the full record of what was masked and where. Built once
// per run, never mutated afterwards.
type RedactionMap struct {
	Entries []RedactionEntry `json:"entries"`
}

// Party is a contracting party with the role the model assigned it.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// PartyObligations summarizes what one party owes under the contract.
type PartyObligations struct {
	Party       string   `json:"party"`
	Obligations []string `json:"obligations"`
}

// KeyDates are the contract's lifecycle dates as ISO-8601 strings, empty
// when the document does not state them.
type KeyDates struct {
	EffectiveDate   string `json:"effective_date,omitempty"`
	TerminationDate string `json:"termination_date,omitempty"`
}

// StageTiming records one stage's wall-clock duration.
type StageTiming struct {
	Stage  constants.Stage `json:"stage"`
	Millis int64           `json:"millis"`
}

// ProviderAttempt records one model-provider call outcome, making fallback
// behavior observable after the run.
type ProviderAttempt struct {
	Provider string `json:"provider"`
	Task     string `json:"task,omitempty"`
	Attempt  int    `json:"attempt"`
	Err      string `json:"err,omitempty"`
}

// Diagnostics carries per-run observability data inside the report.
type Diagnostics struct {
	Stages   []StageTiming     `json:"stages,omitempty"`
	Attempts []ProviderAttempt `json:"attempts,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Report is the assembled outcome of one pipeline run. Immutable once
// returned. A degraded report (Degraded=true) carries clauses, entities,
// redacted text, and a rule-only risk assessment, but no summary.
type Report struct {
	DocumentID      uuid.UUID          `json:"document_id"`
	RunID           uuid.UUID          `json:"run_id"`
	Title           string             `json:"title,omitempty"`
	Parties         []Party            `json:"parties,omitempty"`
	KeyDates        KeyDates           `json:"key_dates"`
	Summary         string             `json:"summary,omitempty"`
	Obligations     []PartyObligations `json:"obligations,omitempty"`
	Clauses         []ClauseMatch      `json:"clauses"`
	Entities        []EntityMatch      `json:"entities"`
	Risk            *RiskAssessment    `json:"risk,omitempty"`
	RedactedText    string             `json:"redacted_text"`
	Redactions      RedactionMap       `json:"redactions"`
	Degraded        bool               `json:"degraded,omitempty"`
	DegradedReason  string             `json:"degraded_reason,omitempty"`
	Diagnostics     Diagnostics        `json:"diagnostics,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
	PipelineVersion string             `json:"pipeline_version"`
}
