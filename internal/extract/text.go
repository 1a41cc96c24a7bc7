package extract

import (
	"strings"

	"github.com/lexfield/contract-insight/internal/domain"
)

// extractText folds consecutive non-blank lines into paragraph
// segments. A segment's Line is the 1-based line the paragraph starts
// on, which keeps reading order stable under the ordinal sort.
func extractText(payload []byte) ([]domain.Segment, error) {
	text := strings.ReplaceAll(string(payload), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var segments []domain.Segment
	var para []string
	start := 0

	flush := func() {
		if len(para) == 0 {
			return
		}
		segments = append(segments, domain.Segment{
			Location:   domain.SourceLocation{Line: start},
			Text:       strings.Join(para, "\n"),
			Confidence: 1.0,
		})
		para = para[:0]
	}

	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			flush()
			continue
		}
		if len(para) == 0 {
			start = i + 1
		}
		para = append(para, trimmed)
	}
	flush()
	return segments, nil
}

// extractMarkdown treats markdown as plain text after stripping the
// few markers that would otherwise leak into clause matching. Inline
// emphasis and link targets stay put; the analyzer tolerates them.
func extractMarkdown(payload []byte) ([]domain.Segment, error) {
	segments, err := extractText(payload)
	if err != nil {
		return nil, err
	}
	for i := range segments {
		segments[i].Text = stripMarkdown(segments[i].Text)
	}
	return segments, nil
}

func stripMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "#"):
			lines[i] = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			lines[i] = strings.TrimSpace(trimmed[2:])
		case strings.HasPrefix(trimmed, "> "):
			lines[i] = strings.TrimSpace(trimmed[2:])
		default:
			lines[i] = strings.TrimSpace(line)
		}
	}
	return strings.Join(lines, "\n")
}
