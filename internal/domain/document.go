// Package domain holds the data model shared across pipeline stages.
// Values are treated as immutable once produced by their owning stage.
package domain

import (
	"github.com/google/uuid"

	"github.com/lexfield/contract-insight/constants"
)

// Document is one ingested contract, owned by exactly one pipeline run.
type Document struct {
	ID             uuid.UUID        `json:"id"`
	Filename       string           `json:"filename,omitempty"`
	DeclaredFormat constants.Format `json:"declared_format,omitempty"`
	DetectedFormat constants.Format `json:"detected_format"`
	Payload        []byte           `json:"-"`
}

// SourceLocation records where a segment came from. Only the fields
// meaningful for the source format are set: Page for PDFs, Slide for
// presentations, Sheet/SheetIndex/Row/Col for spreadsheets, Line for
// plain text.
type SourceLocation struct {
	Page       int    `json:"page,omitempty"`
	Slide      int    `json:"slide,omitempty"`
	Sheet      string `json:"sheet,omitempty"`
	SheetIndex int    `json:"sheet_index,omitempty"`
	Row        int    `json:"row,omitempty"`
	Col        int    `json:"col,omitempty"`
	Line       int    `json:"line,omitempty"`
}

// ordinal flattens a location into comparable reading-order keys. Only one
// coarse field is populated per format, so taking the max is exact.
func (l SourceLocation) ordinal() (coarse, mid, fine int) {
	coarse = l.Page
	if l.Slide > coarse {
		coarse = l.Slide
	}
	if l.SheetIndex > coarse {
		coarse = l.SheetIndex
	}
	mid = l.Line
	if l.Row > mid {
		mid = l.Row
	}
	return coarse, mid, l.Col
}

// Compare orders two locations by document reading order. It returns a
// negative value when l precedes o, zero when they tie, positive otherwise.
func (l SourceLocation) Compare(o SourceLocation) int {
	lc, lm, lf := l.ordinal()
	oc, om, of := o.ordinal()
	if lc != oc {
		return lc - oc
	}
	if lm != om {
		return lm - om
	}
	return lf - of
}

// Segment is one unit of normalized text with provenance and confidence.
// Confidence is 1.0 for native text and the OCR backend's certainty for
// recognized text.
type Segment struct {
	Index      int            `json:"index"`
	Location   SourceLocation `json:"location"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	OCR        bool           `json:"ocr,omitempty"`
}

// MinConfidence returns the lowest confidence among segments[from..to]
// inclusive. Indexes outside the slice are ignored; an empty range
// returns 1.0.
func MinConfidence(segments []Segment, from, to int) float64 {
	min := 1.0
	seen := false
	for _, s := range segments {
		if s.Index < from || s.Index > to {
			continue
		}
		seen = true
		if s.Confidence < min {
			min = s.Confidence
		}
	}
	if !seen {
		return 1.0
	}
	return min
}

// JoinText renders the normalized document text: segment texts in order,
// joined by single newlines. Offsets into this text are stable for a given
// segment sequence, which the redaction map relies on.
func JoinText(segments []Segment) string {
	total := 0
	for _, s := range segments {
		total += len(s.Text) + 1
	}
	if total == 0 {
		return ""
	}
	buf := make([]byte, 0, total-1)
	for i, s := range segments {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
