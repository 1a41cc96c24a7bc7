package constants

import (
	"strings"
)

// ClauseType labels a structurally significant contract passage.
type ClauseType string

const (
	ClauseParties         ClauseType = "PARTIES"
	ClauseTerm            ClauseType = "TERM"
	ClauseObligations     ClauseType = "OBLIGATIONS"
	ClauseTermination     ClauseType = "TERMINATION"
	ClauseIndemnity       ClauseType = "INDEMNITY"
	ClauseGoverningLaw    ClauseType = "GOVERNING_LAW"
	ClausePayment         ClauseType = "PAYMENT"
	ClauseConfidentiality ClauseType = "CONFIDENTIALITY"
	ClauseLiability       ClauseType = "LIABILITY"
	ClauseRenewal         ClauseType = "RENEWAL"
)

var allClauseTypes = []ClauseType{
	ClauseParties,
	ClauseTerm,
	ClauseObligations,
	ClauseTermination,
	ClauseIndemnity,
	ClauseGoverningLaw,
	ClausePayment,
	ClauseConfidentiality,
	ClauseLiability,
	ClauseRenewal,
}

// RequiredClauseTypes are the types whose absence contributes to the
// rule-based risk subscore.
var RequiredClauseTypes = []ClauseType{
	ClauseParties,
	ClauseTerm,
	ClauseTermination,
	ClauseGoverningLaw,
}

// AllClauseTypes returns every known clause type in stable order.
func AllClauseTypes() []ClauseType {
	out := make([]ClauseType, len(allClauseTypes))
	copy(out, allClauseTypes)
	return out
}

// ClauseTypeStrings returns the clause types as plain strings, for schema enums.
func ClauseTypeStrings() []string {
	result := make([]string, len(allClauseTypes))
	for i, ct := range allClauseTypes {
		result[i] = string(ct)
	}
	return result
}

// CanonicalizeClauseType maps free-form model output ("governing law",
// "indemnification") onto a known clause type.
func CanonicalizeClauseType(input string) (ClauseType, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, " ", "_")

	// synonyms map
	synonyms := map[string]ClauseType{
		"party":              ClauseParties,
		"parties_involved":   ClauseParties,
		"duration":           ClauseTerm,
		"term_of_agreement":  ClauseTerm,
		"obligation":         ClauseObligations,
		"duties":             ClauseObligations,
		"termination_clause": ClauseTermination,
		"indemnification":    ClauseIndemnity,
		"indemnities":        ClauseIndemnity,
		"jurisdiction":       ClauseGoverningLaw,
		"choice_of_law":      ClauseGoverningLaw,
		"applicable_law":     ClauseGoverningLaw,
		"payment_terms":      ClausePayment,
		"fees":               ClausePayment,
		"compensation":       ClausePayment,
		"non_disclosure":     ClauseConfidentiality,
		"nda":                ClauseConfidentiality,
		"limitation_of_liability": ClauseLiability,
		"auto_renewal":            ClauseRenewal,
		"extension":               ClauseRenewal,
	}

	if ct, ok := synonyms[normalized]; ok {
		return ct, true
	}

	for _, ct := range allClauseTypes {
		if normalized == strings.ToLower(string(ct)) {
			return ct, true
		}
	}

	return "", false
}
