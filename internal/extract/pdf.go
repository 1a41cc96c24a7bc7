package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/ocr"
)

// extractPDF walks the document page by page. Pages with a usable text
// layer are parsed from their content streams in parallel; text-poor pages
// that carry image streams are treated as scanned and recognized through
// the OCR adapter, also in parallel. Results merge back in page order.
func (e *Extractor) extractPDF(ctx context.Context, payload []byte) (Result, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(payload), conf)
	if err != nil {
		return Result{}, common.CorruptDocumentError("PDF", fmt.Errorf("pdfcpu read: %w", err))
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return Result{}, common.CorruptDocumentError("PDF", fmt.Errorf("document has no pages"))
	}

	// content streams must be pulled sequentially; the parse of each
	// stream is independent and runs on the pool below
	contents := make([][]byte, pageCount)
	for p := 1; p <= pageCount; p++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, p)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		contents[p-1] = data
	}

	pageTexts, err := runOrdered(ctx, e.cfg.Concurrency, pageCount, func(_ context.Context, i int) (string, error) {
		if len(contents[i]) == 0 {
			return "", nil
		}
		return extractTextFromStream(contents[i]), nil
	})
	if err != nil {
		return Result{}, err
	}

	// decide per page between the native text layer and OCR
	var ocrPages []int
	for p := 1; p <= pageCount; p++ {
		if len(pageTexts[p-1]) >= e.cfg.MinPageTextChars {
			continue
		}
		if pageHasImages(pdfCtx, p) {
			ocrPages = append(ocrPages, p)
		}
	}

	var res Result
	ocrSegs := make(map[int][]domain.Segment, len(ocrPages))
	if len(ocrPages) > 0 {
		type pageOCR struct {
			page     int
			segments []domain.Segment
			warning  string
		}
		outs, err := runOrdered(ctx, e.cfg.Concurrency, len(ocrPages), func(ctx context.Context, i int) (pageOCR, error) {
			page := ocrPages[i]
			frags, err := e.ocr.RecognizePDFPageBytes(ctx, payload, page)
			if err != nil {
				return pageOCR{}, fmt.Errorf("ocr page %d: %w", page, err)
			}
			out := pageOCR{page: page, segments: fragmentsToSegments(frags, page)}
			if mean := ocr.MeanConfidence(frags); len(frags) > 0 && mean < e.ocr.WarnConfidence() {
				out.warning = fmt.Sprintf("low ocr confidence %.2f on page %d", mean, page)
			}
			return out, nil
		})
		if err != nil {
			return Result{}, err
		}
		for _, o := range outs {
			ocrSegs[o.page] = o.segments
			if o.warning != "" {
				res.Warnings = append(res.Warnings, o.warning)
			}
		}
	}

	// ordered merge: native lines or OCR lines, page by page
	for p := 1; p <= pageCount; p++ {
		if segs, ok := ocrSegs[p]; ok {
			res.Segments = append(res.Segments, segs...)
			continue
		}
		for i, line := range splitPageLines(pageTexts[p-1]) {
			res.Segments = append(res.Segments, domain.Segment{
				Location:   domain.SourceLocation{Page: p, Line: i + 1},
				Text:       line,
				Confidence: 1.0,
			})
		}
	}
	return res, nil
}

func fragmentsToSegments(frags []ocr.Fragment, page int) []domain.Segment {
	segs := make([]domain.Segment, 0, len(frags))
	for _, f := range frags {
		segs = append(segs, domain.Segment{
			Location:   domain.SourceLocation{Page: page, Line: f.Line},
			Text:       f.Text,
			Confidence: f.Confidence,
			OCR:        true,
		})
	}
	return segs
}

// pageHasImages checks the page for image XObjects, falling back to a
// document-wide stream scan when optimization data is unavailable.
func pageHasImages(pdfCtx *model.Context, pageNr int) bool {
	if pdfCtx.Optimize != nil {
		return len(pdfcpu.ImageObjNrs(pdfCtx, pageNr)) > 0
	}
	for _, entry := range pdfCtx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
// Tj/TJ/' carry string runs; Td/TD/T* drive line structure.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Tj operator: (text) Tj
		if bytes.HasSuffix(line, []byte("Tj")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteString(text)
				}
			}
		}

		// TJ operator: [(text) -100 (more text)] TJ
		if bytes.HasSuffix(line, []byte("TJ")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteString(text)
				}
			}
		}

		// ' operator (move to next line and show text): (text) '
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		}

		// Td/TD operators position a new text line
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			sb.WriteByte('\n')
		}

		// T* operator (move to start of next line)
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// splitPageLines cleans a page's raw operator text into trimmed lines,
// collapsing intra-line whitespace but keeping the line structure the
// positioning operators gave us.
func splitPageLines(pageText string) []string {
	var out []string
	for _, raw := range strings.Split(pageText, "\n") {
		line := collapseSpaces(raw)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
