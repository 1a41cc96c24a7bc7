package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

// extractHTML walks the DOM and turns each block-level element into a
// segment. HTML carries no page or line structure, so Line is the
// 1-based block ordinal in document order.
func extractHTML(payload []byte) ([]domain.Segment, error) {
	doc, err := html.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, common.CorruptDocumentError("HTML", fmt.Errorf("parse: %w", err))
	}

	var segments []domain.Segment
	emit := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		segments = append(segments, domain.Segment{
			Location:   domain.SourceLocation{Line: len(segments) + 1},
			Text:       text,
			Confidence: 1.0,
		})
	}
	walkHTMLBlocks(doc, emit)

	if len(segments) == 0 {
		// No recognizable block structure. Fall back to all visible text.
		emit(collectHTMLText(doc))
	}
	return segments, nil
}

// walkHTMLBlocks visits block elements in document order, skipping
// script, style and navigation boilerplate.
func walkHTMLBlocks(n *html.Node, emit func(string)) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.P, atom.Li, atom.Td, atom.Th, atom.Blockquote, atom.Pre:
			emit(collectHTMLText(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTMLBlocks(c, emit)
	}
}

// collectHTMLText gathers visible text from a subtree, joining text
// nodes with single spaces.
func collectHTMLText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
