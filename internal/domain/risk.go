package domain

// Severity is the band derived from a risk score.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Severity band cutoffs. Scores of 0-30 are LOW, 31-60 MEDIUM, 61-100 HIGH.
const (
	severityLowMax    = 30
	severityMediumMax = 60
)

// SeverityForScore maps a 0-100 score onto its band.
func SeverityForScore(score int) Severity {
	switch {
	case score <= severityLowMax:
		return SeverityLow
	case score <= severityMediumMax:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// RiskFactor is one contribution to the risk score. Weight is the factor's
// weighted contribution to the final score, so the rationale always adds up.
type RiskFactor struct {
	Source string  `json:"source"`
	Code   string  `json:"code"`
	Detail string  `json:"detail"`
	Weight float64 `json:"weight"`
}

// RiskAssessment is the scored outcome with its explanation.
type RiskAssessment struct {
	Score     int          `json:"score"`
	Severity  Severity     `json:"severity"`
	Rationale []RiskFactor `json:"rationale"`
}
