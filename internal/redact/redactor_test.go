package redact

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

func newTestRedactor(types ...string) *Redactor {
	return New(common.RedactionConfig{Types: types}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func entity(t constants.EntityType, seg, off, length int) domain.EntityMatch {
	return domain.EntityMatch{
		Type:       t,
		Span:       domain.Span{Segment: seg, Offset: off, Length: length},
		Confidence: 0.9,
		Source:     domain.SourceRule,
	}
}

func contactSegments() []domain.Segment {
	return []domain.Segment{
		{Index: 0, Text: "Contact John Smith at john@acme.com or +1 555 123 4567.", Confidence: 1.0},
		{Index: 1, Text: "Acme Corp pays $100.", Confidence: 1.0},
	}
}

func contactEntities() []domain.EntityMatch {
	return []domain.EntityMatch{
		entity(constants.EntityPerson, 0, 8, len("John Smith")),
		entity(constants.EntityEmail, 0, 22, len("john@acme.com")),
		entity(constants.EntityPhone, 0, 39, len("+1 555 123 4567")),
		entity(constants.EntityOrg, 1, 0, len("Acme Corp")),
		entity(constants.EntityMoney, 1, 15, len("$100")),
	}
}

func TestRedactMasksDefaultTypesOnly(t *testing.T) {
	r := newTestRedactor()

	text, m, err := r.Redact(contactSegments(), contactEntities())
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}

	if strings.Contains(text, "john@acme.com") || strings.Contains(text, "John Smith") || strings.Contains(text, "555 123 4567") {
		t.Errorf("raw PII left in output:\n%s", text)
	}
	for _, token := range []string{"[REDACTED_PERSON]", "[REDACTED_EMAIL]", "[REDACTED_PHONE]"} {
		if !strings.Contains(text, token) {
			t.Errorf("missing %s in output:\n%s", token, text)
		}
	}
	// ORG and MONEY are outside the default allow-list
	if !strings.Contains(text, "Acme Corp pays $100.") {
		t.Errorf("non-designated entities were masked:\n%s", text)
	}
	if len(m.Entries) != 3 {
		t.Errorf("map entries = %d, want 3", len(m.Entries))
	}
}

func TestRedactPreservesSurroundingText(t *testing.T) {
	r := newTestRedactor()

	text, _, err := r.Redact(contactSegments(), contactEntities())
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	lines := strings.Split(text, "\n")
	if lines[0] != "Contact [REDACTED_PERSON] at [REDACTED_EMAIL] or [REDACTED_PHONE]." {
		t.Errorf("line 0 = %q", lines[0])
	}
}

func TestRedactMapOffsetsPointAtTokens(t *testing.T) {
	r := newTestRedactor()

	text, m, err := r.Redact(contactSegments(), contactEntities())
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	lines := strings.Split(text, "\n")
	for _, e := range m.Entries {
		line := lines[e.Span.Segment]
		if got := line[e.Span.Offset : e.Span.Offset+e.Span.Length]; got != e.Token {
			t.Errorf("segment %d offset %d = %q, want %q", e.Span.Segment, e.Span.Offset, got, e.Token)
		}
	}
}

func TestRedactMergesOverlappingSpans(t *testing.T) {
	r := newTestRedactor()
	segments := []domain.Segment{{Index: 0, Text: "ID 123-45-6789 on file.", Confidence: 1.0}}
	entities := []domain.EntityMatch{
		entity(constants.EntityPhone, 0, 3, 9),
		entity(constants.EntityID, 0, 3, 11),
	}

	text, m, err := r.Redact(segments, entities)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if text != "ID [REDACTED_ID] on file." {
		t.Errorf("text = %q, want single ID token for the merged region", text)
	}
	if len(m.Entries) != 1 || m.Entries[0].Type != constants.EntityID {
		t.Errorf("entries = %+v", m.Entries)
	}
}

func TestRedactMergesAdjacentSpansEarliestWinsTie(t *testing.T) {
	r := newTestRedactor()
	segments := []domain.Segment{{Index: 0, Text: "AB", Confidence: 1.0}}
	entities := []domain.EntityMatch{
		entity(constants.EntityID, 0, 1, 1),
		entity(constants.EntityPhone, 0, 0, 1),
	}

	text, m, err := r.Redact(segments, entities)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if text != "[REDACTED_PHONE]" {
		t.Errorf("text = %q, want earliest constituent's type on equal lengths", text)
	}
	if len(m.Entries) != 1 {
		t.Errorf("entries = %+v, want one merged entry", m.Entries)
	}
}

func TestRedactIdempotentOnRedactedText(t *testing.T) {
	r := newTestRedactor()

	text, _, err := r.Redact(contactSegments(), contactEntities())
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}

	var again []domain.Segment
	for i, line := range strings.Split(text, "\n") {
		again = append(again, domain.Segment{Index: i, Text: line, Confidence: 1.0})
	}
	text2, m2, err := r.Redact(again, nil)
	if err != nil {
		t.Fatalf("Redact (second pass): %v", err)
	}
	if text2 != text {
		t.Errorf("second pass changed text:\n%q\n%q", text, text2)
	}
	if len(m2.Entries) != 0 {
		t.Errorf("second pass entries = %+v", m2.Entries)
	}
}

func TestRedactCustomAllowList(t *testing.T) {
	r := newTestRedactor("EMAIL")

	text, _, err := r.Redact(contactSegments(), contactEntities())
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if strings.Contains(text, "john@acme.com") {
		t.Error("email not masked")
	}
	if !strings.Contains(text, "John Smith") {
		t.Error("PERSON masked despite not being allow-listed")
	}
}

func TestRedactMalformedSpans(t *testing.T) {
	r := newTestRedactor()
	segments := []domain.Segment{{Index: 0, Text: "short", Confidence: 1.0}}

	tests := []struct {
		name string
		e    domain.EntityMatch
	}{
		{"unknown segment", entity(constants.EntityEmail, 9, 0, 3)},
		{"negative offset", entity(constants.EntityEmail, 0, -1, 3)},
		{"past segment end", entity(constants.EntityEmail, 0, 3, 10)},
		{"zero length", entity(constants.EntityEmail, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := r.Redact(segments, []domain.EntityMatch{tt.e}); !errors.Is(err, common.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRedactNoEntitiesIsIdentity(t *testing.T) {
	r := newTestRedactor()
	segments := contactSegments()

	text, m, err := r.Redact(segments, nil)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if text != domain.JoinText(segments) {
		t.Errorf("text = %q", text)
	}
	if len(m.Entries) != 0 {
		t.Errorf("entries = %+v", m.Entries)
	}
}
