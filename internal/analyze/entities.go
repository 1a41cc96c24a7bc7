package analyze

import (
	"regexp"
	"strings"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/domain"
)

// entityRule finds one entity type inside a segment's text. Confidence is
// per pattern: structured values (emails, ID numbers) score higher than
// shape-based guesses (names from honorifics).
type entityRule struct {
	entityType constants.EntityType
	re         *regexp.Regexp
	confidence float64
	normalize  func(string) string
}

var entityRules = []entityRule{
	{
		entityType: constants.EntityEmail,
		re:         regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		confidence: 0.95,
		normalize:  strings.ToLower,
	},
	{
		// SSN-style identifiers, matched before PHONE so the digit runs
		// are not claimed as phone numbers
		entityType: constants.EntityID,
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		confidence: 0.95,
		normalize:  digitsOnly,
	},
	{
		// 16-digit card-style identifiers
		entityType: constants.EntityID,
		re:         regexp.MustCompile(`\b\d{4}[ \-]?\d{4}[ \-]?\d{4}[ \-]?\d{4}\b`),
		confidence: 0.9,
		normalize:  digitsOnly,
	},
	{
		// dates go before PHONE: an ISO date is all digits and dashes and
		// would otherwise be claimed as a phone number
		entityType: constants.EntityDate,
		re: regexp.MustCompile(`(?i)\b(?:\d{4}-\d{2}-\d{2}` +
			`|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}` +
			`|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`),
		confidence: 0.85,
		normalize:  strings.ToLower,
	},
	{
		entityType: constants.EntityPhone,
		re:         regexp.MustCompile(`\+?\d[\d \-()]{7,}\d`),
		confidence: 0.8,
		normalize:  digitsOnly,
	},
	{
		entityType: constants.EntityMoney,
		re:         regexp.MustCompile(`(?:[$€£]\s?[\d,]+(?:\.\d{1,2})?|\b(?:USD|EUR|GBP)\s?[\d,]+(?:\.\d{1,2})?)`),
		confidence: 0.9,
		normalize:  normalizeMoney,
	},
	{
		// capitalized tokens ending in a corporate suffix; tokens exclude
		// '.' so a match never bleeds across a sentence boundary
		entityType: constants.EntityOrg,
		re:         regexp.MustCompile(`\b[A-Z][A-Za-z0-9&\-]*(?:\s+(?:&|[A-Z][A-Za-z0-9&\-]*)){0,5},?\s+(?:Inc|LLC|Ltd|Corp|Corporation|Company|GmbH|LLP|PLC)\b`),
		confidence: 0.75,
		normalize:  normalizeName,
	},
	{
		entityType: constants.EntityPerson,
		re:         regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2}\b`),
		confidence: 0.7,
		normalize:  normalizeName,
	},
}

// matchEntities runs every entity pattern over every segment. Offsets are
// byte offsets into the segment's text. Confidence is clamped to the
// segment's own confidence.
func matchEntities(segments []domain.Segment) []domain.EntityMatch {
	var out []domain.EntityMatch
	for _, seg := range segments {
		// earlier rules claim their spans first: an SSN inside a segment
		// must not also surface as a phone number
		var taken []domain.Span
		for _, rule := range entityRules {
			for _, loc := range rule.re.FindAllStringIndex(seg.Text, -1) {
				span := domain.Span{Segment: seg.Index, Offset: loc[0], Length: loc[1] - loc[0]}
				if overlapsAny(span, taken) {
					continue
				}
				taken = append(taken, span)
				value := seg.Text[loc[0]:loc[1]]
				conf := rule.confidence
				if conf > seg.Confidence {
					conf = seg.Confidence
				}
				out = append(out, domain.EntityMatch{
					Type:       rule.entityType,
					Span:       span,
					Value:      value,
					Normalized: rule.normalize(value),
					Confidence: conf,
					Source:     domain.SourceRule,
				})
			}
		}
	}
	return out
}

func overlapsAny(span domain.Span, taken []domain.Span) bool {
	for _, t := range taken {
		if span.Overlaps(t) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeMoney(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), ",", "")
}

func normalizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
