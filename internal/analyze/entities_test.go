package analyze

import (
	"strings"
	"testing"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/domain"
)

func findEntity(t *testing.T, matches []domain.EntityMatch, et constants.EntityType) domain.EntityMatch {
	t.Helper()
	for _, m := range matches {
		if m.Type == et {
			return m
		}
	}
	t.Fatalf("no %s entity in %+v", et, matches)
	return domain.EntityMatch{}
}

func countType(matches []domain.EntityMatch, et constants.EntityType) int {
	n := 0
	for _, m := range matches {
		if m.Type == et {
			n++
		}
	}
	return n
}

func TestMatchEntitiesEmail(t *testing.T) {
	text := "Contact: Legal@Acme.com for notices."
	matches := matchEntities([]domain.Segment{seg(0, text)})

	m := findEntity(t, matches, constants.EntityEmail)
	if m.Value != "Legal@Acme.com" {
		t.Errorf("value = %q", m.Value)
	}
	if m.Normalized != "legal@acme.com" {
		t.Errorf("normalized = %q", m.Normalized)
	}
	if m.Span.Segment != 0 || m.Span.Offset != strings.Index(text, "Legal@") || m.Span.Length != len("Legal@Acme.com") {
		t.Errorf("span = %+v", m.Span)
	}
	if m.Confidence != 0.95 {
		t.Errorf("confidence = %v", m.Confidence)
	}
	if m.Source != domain.SourceRule {
		t.Errorf("source = %q", m.Source)
	}
}

func TestMatchEntitiesSSNClaimsSpanBeforePhone(t *testing.T) {
	matches := matchEntities([]domain.Segment{seg(0, "Taxpayer ID 123-45-6789 on file.")})

	if n := countType(matches, constants.EntityID); n != 1 {
		t.Fatalf("ID matches = %d, want 1", n)
	}
	if n := countType(matches, constants.EntityPhone); n != 0 {
		t.Errorf("PHONE matches = %d, want 0 (span already claimed)", n)
	}
	m := findEntity(t, matches, constants.EntityID)
	if m.Normalized != "123456789" {
		t.Errorf("normalized = %q", m.Normalized)
	}
}

func TestMatchEntitiesCardNumber(t *testing.T) {
	matches := matchEntities([]domain.Segment{seg(0, "Card on file: 4111 1111 1111 1111.")})

	m := findEntity(t, matches, constants.EntityID)
	if m.Normalized != "4111111111111111" {
		t.Errorf("normalized = %q", m.Normalized)
	}
	if n := countType(matches, constants.EntityPhone); n != 0 {
		t.Errorf("PHONE matches = %d, want 0", n)
	}
}

func TestMatchEntitiesPhone(t *testing.T) {
	matches := matchEntities([]domain.Segment{seg(0, "Call +1 (555) 123-4567 during business hours.")})

	m := findEntity(t, matches, constants.EntityPhone)
	if m.Normalized != "15551234567" {
		t.Errorf("normalized = %q", m.Normalized)
	}
	if m.Confidence != 0.8 {
		t.Errorf("confidence = %v", m.Confidence)
	}
}

func TestMatchEntitiesMoneyAndDate(t *testing.T) {
	matches := matchEntities([]domain.Segment{
		seg(0, "A setup fee of $1,500.00 is due on January 15, 2024."),
	})

	money := findEntity(t, matches, constants.EntityMoney)
	if money.Value != "$1,500.00" {
		t.Errorf("money value = %q", money.Value)
	}
	if money.Normalized != "$1500.00" {
		t.Errorf("money normalized = %q", money.Normalized)
	}

	date := findEntity(t, matches, constants.EntityDate)
	if date.Value != "January 15, 2024" {
		t.Errorf("date value = %q", date.Value)
	}
}

func TestMatchEntitiesISODate(t *testing.T) {
	matches := matchEntities([]domain.Segment{seg(0, "Effective as of 2024-03-01.")})

	date := findEntity(t, matches, constants.EntityDate)
	if date.Value != "2024-03-01" {
		t.Errorf("date value = %q", date.Value)
	}
}

func TestMatchEntitiesOrgAndPerson(t *testing.T) {
	matches := matchEntities([]domain.Segment{
		seg(0, "Globex Corporation is represented by Mr. John Smith."),
	})

	org := findEntity(t, matches, constants.EntityOrg)
	if org.Value != "Globex Corporation" {
		t.Errorf("org value = %q", org.Value)
	}
	if org.Normalized != "globex corporation" {
		t.Errorf("org normalized = %q", org.Normalized)
	}

	person := findEntity(t, matches, constants.EntityPerson)
	if person.Value != "Mr. John Smith" {
		t.Errorf("person value = %q", person.Value)
	}
}

func TestMatchEntitiesConfidenceClampedToSegment(t *testing.T) {
	matches := matchEntities([]domain.Segment{
		{Index: 0, Text: "Reach billing@acme.com anytime.", Confidence: 0.4, OCR: true},
	})

	m := findEntity(t, matches, constants.EntityEmail)
	if m.Confidence != 0.4 {
		t.Errorf("confidence = %v, want clamped 0.4", m.Confidence)
	}
}

func TestMatchEntitiesMultipleOccurrences(t *testing.T) {
	matches := matchEntities([]domain.Segment{
		seg(0, "Send to a@x.io and cc b@x.io."),
		seg(1, "Escalations: a@x.io."),
	})

	if n := countType(matches, constants.EntityEmail); n != 3 {
		t.Fatalf("EMAIL matches = %d, want 3", n)
	}
}
