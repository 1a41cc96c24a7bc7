package constants

// RunStatus is the canonical state of a pipeline run.
type RunStatus string

// Stable values (store these exact strings in the runs table).
// Transitions are strictly forward; FAILED is terminal and reachable
// from any non-terminal state.
const (
	RunStatusIngested         RunStatus = "INGESTED"
	RunStatusExtracted        RunStatus = "EXTRACTED"
	RunStatusAnalyzed         RunStatus = "ANALYZED"
	RunStatusSummarizedScored RunStatus = "SUMMARIZED_SCORED"
	RunStatusRedacted         RunStatus = "REDACTED"
	RunStatusReported         RunStatus = "REPORTED"
	RunStatusFailed           RunStatus = "FAILED"
)

// Stage names a pipeline stage for timeouts, errors, and diagnostics.
type Stage string

const (
	StageExtract        Stage = "extract"
	StageAnalyze        Stage = "analyze"
	StageSummarizeScore Stage = "summarize_score"
	StageRedact         Stage = "redact"
	StageReport         Stage = "report"
)

// next maps each non-terminal status to its only legal successor.
var next = map[RunStatus]RunStatus{
	RunStatusIngested:         RunStatusExtracted,
	RunStatusExtracted:        RunStatusAnalyzed,
	RunStatusAnalyzed:         RunStatusSummarizedScored,
	RunStatusSummarizedScored: RunStatusRedacted,
	RunStatusRedacted:         RunStatusReported,
}

// CanTransition reports whether moving from one status to another is a legal
// forward step. FAILED is reachable from any non-terminal state.
func CanTransition(from, to RunStatus) bool {
	if from == RunStatusReported || from == RunStatusFailed {
		return false
	}
	if to == RunStatusFailed {
		return true
	}
	return next[from] == to
}
