package analyze

import (
	"regexp"
	"strings"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/domain"
)

// clauseRule identifies one clause type. A heading hit anchors the clause
// at higher confidence than a body keyword hit; either way the match is
// clamped to the confidence of the segments it spans.
type clauseRule struct {
	clauseType constants.ClauseType
	heading    *regexp.Regexp
	body       *regexp.Regexp
}

const (
	headingConfidence = 0.85
	bodyConfidence    = 0.7
)

var clauseRules = []clauseRule{
	{
		clauseType: constants.ClauseParties,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?(?:the\s+)?parties\b`),
		body:       regexp.MustCompile(`(?i)\b(?:by and )?between\s+.{3,80}\s+and\s+`),
	},
	{
		clauseType: constants.ClauseTerm,
		heading:    regexp.MustCompile(`(?i)^\s*(?:article|section|clause)?\s*\d*[.)]?\s*term(?:\s+of\s+(?:this\s+)?agreement)?\s*[.:]?\s*$`),
		body:       regexp.MustCompile(`(?i)\b(?:initial term|term of this agreement|shall (?:commence|remain in (?:full )?force)|effective (?:date|as of))\b`),
	},
	{
		clauseType: constants.ClauseObligations,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?(?:obligations|responsibilities|duties)\b`),
		body:       regexp.MustCompile(`(?i)\bshall\s+(?:provide|perform|deliver|pay|maintain|procure|ensure)\b`),
	},
	{
		clauseType: constants.ClauseTermination,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?termination\b`),
		body:       regexp.MustCompile(`(?i)\b(?:terminat(?:e|ed|ion) (?:this|the) agreement|prior written notice of termination|upon termination)\b`),
	},
	{
		clauseType: constants.ClauseIndemnity,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?indemni(?:ty|fication)\b`),
		body:       regexp.MustCompile(`(?i)\b(?:indemnify|hold\s+harmless|indemnification)\b`),
	},
	{
		clauseType: constants.ClauseGoverningLaw,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?governing\s+law\b`),
		body:       regexp.MustCompile(`(?i)\b(?:governed by(?: and construed in accordance with)? the laws? of|exclusive jurisdiction of)\b`),
	},
	{
		clauseType: constants.ClausePayment,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?(?:payment|fees|compensation|consideration)\b`),
		body:       regexp.MustCompile(`(?i)\b(?:shall pay|payable within|invoice[sd]?|payment terms|net \d{1,3})\b`),
	},
	{
		clauseType: constants.ClauseConfidentiality,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?(?:confidentiality|non-?disclosure)\b`),
		body:       regexp.MustCompile(`(?i)\b(?:confidential information|keep (?:strictly )?confidential|shall not disclose)\b`),
	},
	{
		clauseType: constants.ClauseLiability,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?(?:limitation of )?liability\b`),
		body:       regexp.MustCompile(`(?i)\b(?:liable for|liability (?:shall|will) (?:not|be limited)|in no event shall .{3,60} be liable)\b`),
	},
	{
		clauseType: constants.ClauseRenewal,
		heading:    regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*)?renewal\b`),
		body:       regexp.MustCompile(`(?i)\b(?:automatically renew|renewal term|extend(?:ed)? for successive)\b`),
	},
}

// matchClauses runs the rule pass. Each matching segment yields one
// candidate; adjacent segments matching the same type fold into a single
// clause spanning both.
func matchClauses(segments []domain.Segment) []domain.ClauseMatch {
	var out []domain.ClauseMatch
	for _, rule := range clauseRules {
		var current *domain.ClauseMatch
		for _, seg := range segments {
			conf := 0.0
			if rule.heading.MatchString(firstLine(seg.Text)) {
				conf = headingConfidence
			} else if rule.body.MatchString(seg.Text) {
				conf = bodyConfidence
			}
			if conf == 0 {
				current = nil
				continue
			}
			if current != nil && seg.Index == current.Segments.To+1 {
				current.Segments.To = seg.Index
				current.Text += "\n" + seg.Text
				if conf > current.Confidence {
					current.Confidence = conf
				}
				continue
			}
			out = append(out, domain.ClauseMatch{
				Type:       rule.clauseType,
				Segments:   domain.SegmentRange{From: seg.Index, To: seg.Index},
				Text:       seg.Text,
				Confidence: conf,
				Source:     domain.SourceRule,
			})
			current = &out[len(out)-1]
		}
	}

	for i := range out {
		out[i].Confidence = clampToSegments(out[i].Confidence, segments, out[i].Segments)
	}
	return out
}

// clampToSegments enforces the confidence ceiling: no clause or entity is
// more certain than the least certain segment it spans.
func clampToSegments(conf float64, segments []domain.Segment, r domain.SegmentRange) float64 {
	if floor := domain.MinConfidence(segments, r.From, r.To); conf > floor {
		return floor
	}
	return conf
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
