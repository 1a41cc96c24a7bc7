package analyze

import (
	"strconv"
	"strings"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/domain"
)

// segmentTextCap bounds a single segment's contribution to the user prompt
// so one enormous clause cannot crowd out the rest of the numbered listing.
const segmentTextCap = 800

// BuildAnalysisSystemPrompt composes the system message: role, the allowed
// clause and entity enums, and strict formatting rules. Segment indexes in
// the reply must reference the numbered listing in the user message.
func BuildAnalysisSystemPrompt() string {
	parts := []string{
		"You are a contract analyst. Return ONLY JSON that matches the provided JSON Schema.",
		"The user message lists the contract as numbered segments like [3] <text>. " +
			"When you identify a clause, report the segment range it spans using those numbers " +
			"('segment_from' and 'segment_to', inclusive).",
		"Clause 'type' MUST be exactly one of: " + strings.Join(constants.ClauseTypeStrings(), ", ") + ".",
		"Entity 'type' MUST be exactly one of: " + strings.Join(constants.EntityTypeStrings(), ", ") + ". " +
			"For each entity, 'value' is the exact text as it appears in the document.",
		"Use ISO-8601 dates (YYYY-MM-DD) for 'effective_date' and 'termination_date'.",
		"For 'parties', give each party's name and its contractual role (e.g. Client, Provider, Licensor).",
		"For 'obligations', group the duties the contract imposes by party.",
		"'confidence' is your certainty in [0,1]. Be conservative: prefer 0.5 over 0.9 when the text is ambiguous.",
		"Never output null. If a field is not present in the document, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildAnalysisUserPrompt renders the extracted segments as a numbered
// listing. Indexes match Segment.Index so reply ranges map straight back.
func BuildAnalysisUserPrompt(segments []domain.Segment) string {
	var b strings.Builder
	b.WriteString("Contract segments:\n")
	writeSegmentListing(&b, segments, 0, len(segments)-1)
	return b.String()
}

// verifyWindowRadius is how many segments on each side of a candidate are
// included in its verdict prompt. Adjusted spans are expected to land inside
// that window.
const verifyWindowRadius = 2

// BuildVerifySystemPrompt composes the system message for a single-candidate
// verdict call.
func BuildVerifySystemPrompt() string {
	parts := []string{
		"You are a contract analyst reviewing one candidate clause that pattern rules identified.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"'verdict' MUST be one of: confirm (the candidate is this clause type and the span is right), " +
			"adjust (right clause type but the span is wrong; give corrected 'segment_from' and 'segment_to' " +
			"from the numbered listing and quote the clause in 'text'), " +
			"reject (the candidate is not this clause type).",
		"'confidence' is your certainty in [0,1]. Be conservative: prefer 0.5 over 0.9 when the text is ambiguous.",
	}
	return strings.Join(parts, " ")
}

// BuildVerifyUserPrompt renders one candidate clause plus a window of
// surrounding segments, numbered with their document indexes.
func BuildVerifyUserPrompt(c domain.ClauseMatch, segments []domain.Segment) string {
	var b strings.Builder
	b.WriteString("Candidate clause:\ntype: ")
	b.WriteString(string(c.Type))
	b.WriteString("\nsegments: ")
	b.WriteString(strconv.Itoa(c.Segments.From))
	b.WriteString("-")
	b.WriteString(strconv.Itoa(c.Segments.To))
	b.WriteString("\ntext: ")
	text := strings.TrimSpace(c.Text)
	if len(text) > segmentTextCap {
		text = text[:segmentTextCap] + "…(truncated)"
	}
	b.WriteString(text)
	b.WriteString("\n\nSurrounding contract segments:\n")
	writeSegmentListing(&b, segments, c.Segments.From-verifyWindowRadius, c.Segments.To+verifyWindowRadius)
	return b.String()
}

func writeSegmentListing(b *strings.Builder, segments []domain.Segment, from, to int) {
	for _, seg := range segments {
		if seg.Index < from || seg.Index > to {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if len(text) > segmentTextCap {
			text = text[:segmentTextCap] + "…(truncated)"
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(seg.Index))
		b.WriteString("] ")
		b.WriteString(text)
		b.WriteString("\n")
	}
}
