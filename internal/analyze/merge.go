package analyze

import (
	"strings"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/domain"
)

// modelReply mirrors BuildAnalysisJSONSchema. Validation happens in the
// gateway, so fields here can be decoded without re-checking shapes.
type modelReply struct {
	Title           string             `json:"title"`
	Parties         []modelParty       `json:"parties"`
	EffectiveDate   string             `json:"effective_date"`
	TerminationDate string             `json:"termination_date"`
	Clauses         []modelClause      `json:"clauses"`
	Entities        []modelEntity      `json:"entities"`
	Obligations     []modelObligations `json:"obligations"`
}

type modelParty struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type modelClause struct {
	Type        string  `json:"type"`
	SegmentFrom int     `json:"segment_from"`
	SegmentTo   int     `json:"segment_to"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}

type modelEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type modelObligations struct {
	Party       string   `json:"party"`
	Obligations []string `json:"obligations"`
}

// mergeClauses reconciles the rule pass with the model pass. A model clause
// replaces an overlapping rule clause of the same type only when its
// confidence clears the override threshold; otherwise the rule clause
// stands. Model clauses with no rule counterpart are additive.
func mergeClauses(ruleMatches []domain.ClauseMatch, reply modelClause, segments []domain.Segment, threshold float64) ([]domain.ClauseMatch, bool) {
	ct, ok := constants.CanonicalizeClauseType(reply.Type)
	if !ok {
		return ruleMatches, false
	}
	r, ok := clampRange(reply.SegmentFrom, reply.SegmentTo, len(segments))
	if !ok {
		return ruleMatches, false
	}

	match := domain.ClauseMatch{
		Type:       ct,
		Segments:   r,
		Text:       clauseText(reply.Text, segments, r),
		Confidence: clampToSegments(clamp01(reply.Confidence), segments, r),
		Source:     domain.SourceModel,
	}

	for i, existing := range ruleMatches {
		if existing.Type != ct || !rangesOverlap(existing.Segments, r) {
			continue
		}
		if match.Confidence > threshold {
			ruleMatches[i] = match
			return ruleMatches, true
		}
		return ruleMatches, false
	}
	return append(ruleMatches, match), true
}

// mergeEntity locates a model entity's value inside the segments and emits
// one match per occurrence; redaction later needs every occurrence, not
// just the first. Values never found in the text are dropped.
func mergeEntity(existing []domain.EntityMatch, reply modelEntity, segments []domain.Segment) []domain.EntityMatch {
	et, ok := constants.CanonicalizeEntityType(reply.Type)
	if !ok || reply.Value == "" {
		return existing
	}
	for _, seg := range segments {
		for _, off := range allIndexes(seg.Text, reply.Value) {
			span := domain.Span{Segment: seg.Index, Offset: off, Length: len(reply.Value)}
			conf := clamp01(reply.Confidence)
			if conf > seg.Confidence {
				conf = seg.Confidence
			}
			existing = addEntity(existing, domain.EntityMatch{
				Type:       et,
				Span:       span,
				Value:      reply.Value,
				Normalized: normalizeEntityValue(et, reply.Value),
				Confidence: conf,
				Source:     domain.SourceModel,
			})
		}
	}
	return existing
}

// addEntity inserts a candidate unless a same-type match already covers an
// overlapping span, in which case the higher-confidence one survives.
func addEntity(existing []domain.EntityMatch, cand domain.EntityMatch) []domain.EntityMatch {
	for i, e := range existing {
		if e.Type != cand.Type || !e.Span.Overlaps(cand.Span) {
			continue
		}
		if cand.Confidence > e.Confidence {
			existing[i] = cand
		}
		return existing
	}
	return append(existing, cand)
}

func normalizeEntityValue(et constants.EntityType, value string) string {
	switch et {
	case constants.EntityPhone, constants.EntityID:
		return digitsOnly(value)
	case constants.EntityMoney:
		return normalizeMoney(value)
	case constants.EntityPerson, constants.EntityOrg:
		return normalizeName(value)
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// clauseText prefers the model's quoted text but falls back to joining the
// spanned segments when the model omits it.
func clauseText(text string, segments []domain.Segment, r domain.SegmentRange) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	var parts []string
	for _, seg := range segments {
		if r.Contains(seg.Index) {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func clampRange(from, to, n int) (domain.SegmentRange, bool) {
	if n == 0 || from > to {
		return domain.SegmentRange{}, false
	}
	if from < 0 {
		from = 0
	}
	if to > n-1 {
		to = n - 1
	}
	if from > to {
		return domain.SegmentRange{}, false
	}
	return domain.SegmentRange{From: from, To: to}, true
}

func rangesOverlap(a, b domain.SegmentRange) bool {
	return a.From <= b.To && b.From <= a.To
}

func allIndexes(haystack, needle string) []int {
	var out []int
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return out
		}
		out = append(out, start+i)
		start += i + len(needle)
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
