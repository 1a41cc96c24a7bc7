// Package redact masks PII entities in extracted text before a report is
// assembled.
package redact

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

// Redactor replaces entity spans of the configured types with placeholder
// tokens. The rewrite is pure: non-PII text, whitespace, and segment order
// are untouched, and the input segments are never mutated.
type Redactor struct {
	types  map[constants.EntityType]bool
	logger *slog.Logger
}

func New(cfg common.RedactionConfig, logger *slog.Logger) *Redactor {
	if logger == nil {
		logger = slog.Default()
	}
	types := map[constants.EntityType]bool{}
	for _, t := range cfg.ParsedTypes() {
		types[t] = true
	}
	return &Redactor{types: types, logger: logger}
}

// Token returns the replacement marker for an entity type.
func Token(t constants.EntityType) string {
	return "[REDACTED_" + string(t) + "]"
}

// constituent is one original span inside a merged region.
type constituent struct {
	typ      constants.EntityType
	from, to int
}

// region is a maximal run of overlapping or touching spans in one segment.
type region struct {
	from, to int
	parts    []constituent
}

// Redact masks every allow-listed entity and returns the redacted text
// (segment texts joined by newlines) plus a map of what was replaced.
// RedactionMap spans are offsets into the redacted segment texts, so the
// map can be audited against the output without exposing removed values.
// A span that does not fit its segment fails the whole call.
func (r *Redactor) Redact(segments []domain.Segment, entities []domain.EntityMatch) (string, domain.RedactionMap, error) {
	bySegment := map[int][]constituent{}
	segText := map[int]string{}
	for _, s := range segments {
		segText[s.Index] = s.Text
	}

	for _, e := range entities {
		if !r.types[e.Type] {
			continue
		}
		text, ok := segText[e.Span.Segment]
		if !ok {
			return "", domain.RedactionMap{}, fmt.Errorf("%w: entity span references unknown segment %d", common.ErrInvalidInput, e.Span.Segment)
		}
		if e.Span.Offset < 0 || e.Span.Length <= 0 || e.Span.Offset+e.Span.Length > len(text) {
			return "", domain.RedactionMap{}, fmt.Errorf("%w: entity span %+v does not fit segment %d (%d bytes)",
				common.ErrInvalidInput, e.Span, e.Span.Segment, len(text))
		}
		bySegment[e.Span.Segment] = append(bySegment[e.Span.Segment], constituent{
			typ:  e.Type,
			from: e.Span.Offset,
			to:   e.Span.Offset + e.Span.Length,
		})
	}

	redacted := make([]domain.Segment, len(segments))
	copy(redacted, segments)

	var entries []domain.RedactionEntry
	for i, s := range redacted {
		spans := bySegment[s.Index]
		if len(spans) == 0 {
			continue
		}
		text, segEntries := rewriteSegment(s.Index, s.Text, mergeRegions(spans))
		redacted[i].Text = text
		entries = append(entries, segEntries...)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Span, entries[j].Span
		if a.Segment != b.Segment {
			return a.Segment < b.Segment
		}
		return a.Offset < b.Offset
	})

	r.logger.Info("redact.done", "entities", len(entries), "segments", len(segments))
	return domain.JoinText(redacted), domain.RedactionMap{Entries: entries}, nil
}

// mergeRegions folds overlapping or touching spans into maximal regions so
// a single token replaces each run and no output is double-masked.
func mergeRegions(spans []constituent) []region {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].from != spans[j].from {
			return spans[i].from < spans[j].from
		}
		return spans[i].to < spans[j].to
	})

	var out []region
	for _, sp := range spans {
		if n := len(out); n > 0 && sp.from <= out[n-1].to {
			if sp.to > out[n-1].to {
				out[n-1].to = sp.to
			}
			out[n-1].parts = append(out[n-1].parts, sp)
			continue
		}
		out = append(out, region{from: sp.from, to: sp.to, parts: []constituent{sp}})
	}
	return out
}

// regionType picks the token type for a merged region: the longest
// constituent wins, the earliest on a tie.
func regionType(reg region) constants.EntityType {
	best := reg.parts[0]
	for _, p := range reg.parts[1:] {
		length, bestLen := p.to-p.from, best.to-best.from
		if length > bestLen || (length == bestLen && p.from < best.from) {
			best = p
		}
	}
	return best.typ
}

// rewriteSegment replaces each region with its token, tracking the offset
// shift so recorded spans land in the rewritten text.
func rewriteSegment(segIndex int, text string, regions []region) (string, []domain.RedactionEntry) {
	var b strings.Builder
	var entries []domain.RedactionEntry
	prev := 0
	delta := 0
	for _, reg := range regions {
		token := Token(regionType(reg))
		b.WriteString(text[prev:reg.from])
		b.WriteString(token)
		entries = append(entries, domain.RedactionEntry{
			Span: domain.Span{
				Segment: segIndex,
				Offset:  reg.from + delta,
				Length:  len(token),
			},
			Type:  regionType(reg),
			Token: token,
		})
		delta += len(token) - (reg.to - reg.from)
		prev = reg.to
	}
	b.WriteString(text[prev:])
	return b.String(), entries
}
