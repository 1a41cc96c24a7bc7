package risk

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/domain"
)

// Points per deterministic rule signal. The raw sum is clamped to 100, with
// rationale weights rescaled so they still add up to the subscore.
const (
	missingClausePoints = 12
	oneSidedPoints      = 8
	shortNoticePoints   = 10
	lowConfidencePoints = 15

	lowConfidenceMean = 0.4
	minNoticeDays     = 30
)

// oneSidedTerms flag language that shifts all leverage to one party.
var oneSidedTerms = []string{
	"sole discretion",
	"unilaterally",
	"without cause",
	"unlimited liability",
	"irrevocable",
	"waive",
}

// noticePeriodRe matches notice phrases like "30 days' written notice",
// "thirty (30) days notice", "ten business days prior notice".
var noticePeriodRe = regexp.MustCompile(
	`(?i)\b([a-z]+-?[a-z]*|\d{1,3})\s*(?:\((\d{1,3})\)\s*)?(?:calendar\s+|business\s+)?days'?\s+(?:prior\s+)?(?:written\s+)?notice`)

var noticeWordDays = map[string]int{
	"five":       5,
	"seven":      7,
	"ten":        10,
	"fourteen":   14,
	"fifteen":    15,
	"twenty":     20,
	"thirty":     30,
	"forty-five": 45,
	"sixty":      60,
	"ninety":     90,
}

type ruleFinding struct {
	code   string
	detail string
	points int
}

// ruleFindings computes the deterministic risk signals: required clauses
// that never matched, one-sided language, short termination notice, and
// low-confidence extraction.
func ruleFindings(segments []domain.Segment, clauses []domain.ClauseMatch) []ruleFinding {
	var out []ruleFinding

	present := map[constants.ClauseType]bool{}
	for _, c := range clauses {
		present[c.Type] = true
	}
	for _, required := range constants.RequiredClauseTypes {
		if !present[required] {
			out = append(out, ruleFinding{
				code:   "MISSING_CLAUSE",
				detail: fmt.Sprintf("no %s clause identified", required),
				points: missingClausePoints,
			})
		}
	}

	joined := strings.ToLower(domain.JoinText(segments))
	for _, term := range oneSidedTerms {
		if n := strings.Count(joined, term); n > 0 {
			out = append(out, ruleFinding{
				code:   "ONE_SIDED_TERMS",
				detail: fmt.Sprintf("%q appears %d time(s)", term, n),
				points: oneSidedPoints,
			})
		}
	}

	if days, ok := shortestNotice(segments); ok && days < minNoticeDays {
		out = append(out, ruleFinding{
			code:   "SHORT_NOTICE",
			detail: fmt.Sprintf("termination notice of %d days", days),
			points: shortNoticePoints,
		})
	}

	if mean, ok := meanConfidence(segments); ok && mean < lowConfidenceMean {
		out = append(out, ruleFinding{
			code:   "LOW_CONFIDENCE_EXTRACTION",
			detail: fmt.Sprintf("mean segment confidence %.2f", mean),
			points: lowConfidencePoints,
		})
	}

	return out
}

// shortestNotice returns the smallest notice period stated anywhere in the
// document.
func shortestNotice(segments []domain.Segment) (int, bool) {
	best := 0
	found := false
	for _, seg := range segments {
		for _, m := range noticePeriodRe.FindAllStringSubmatch(seg.Text, -1) {
			days, ok := parseNoticeDays(m)
			if !ok {
				continue
			}
			if !found || days < best {
				best = days
				found = true
			}
		}
	}
	return best, found
}

func parseNoticeDays(m []string) (int, bool) {
	// a parenthesized numeral ("thirty (30) days") wins over the word
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		return n, err == nil
	}
	if n, err := strconv.Atoi(m[1]); err == nil {
		return n, true
	}
	n, ok := noticeWordDays[strings.ToLower(m[1])]
	return n, ok
}

func meanConfidence(segments []domain.Segment) (float64, bool) {
	if len(segments) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range segments {
		sum += s.Confidence
	}
	return sum / float64(len(segments)), true
}
