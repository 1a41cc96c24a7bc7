package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX parses a .pptx payload. Slides are independent XML parts, so
// they parse in parallel and merge back in slide order. Each text line on
// a slide becomes one segment.
func (e *Extractor) extractPPTX(ctx context.Context, payload []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return Result{}, common.CorruptDocumentError("PPTX", fmt.Errorf("open zip: %w", err))
	}

	type slideFile struct {
		nr   int
		file *zip.File
	}
	var slides []slideFile
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		nr, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{nr: nr, file: f})
	}
	if len(slides) == 0 {
		return Result{}, common.CorruptDocumentError("PPTX", fmt.Errorf("no slides found in archive"))
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].nr < slides[j].nr })

	texts, err := runOrdered(ctx, e.cfg.Concurrency, len(slides), func(_ context.Context, i int) ([]string, error) {
		rc, err := slides[i].file.Open()
		if err != nil {
			return nil, fmt.Errorf("open slide %d: %w", slides[i].nr, err)
		}
		defer rc.Close()
		return parseSlideText(rc), nil
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, lines := range texts {
		for j, line := range lines {
			res.Segments = append(res.Segments, domain.Segment{
				Location:   domain.SourceLocation{Slide: slides[i].nr, Line: j + 1},
				Text:       line,
				Confidence: 1.0,
			})
		}
	}
	return res, nil
}

// parseSlideText walks a slide's XML for <a:t> runs, folding runs within
// one paragraph (<a:p>) into a line.
func parseSlideText(rc io.Reader) []string {
	decoder := xml.NewDecoder(rc)
	var lines []string
	var currentText strings.Builder
	var inRun bool
	var inParagraph bool

	flush := func() {
		text := strings.TrimSpace(currentText.String())
		if text != "" {
			lines = append(lines, text)
		}
		currentText.Reset()
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
			case "t":
				inRun = true
				if inParagraph && currentText.Len() > 0 {
					currentText.WriteByte(' ')
				}
			}

		case xml.CharData:
			if inRun {
				currentText.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				if inParagraph {
					inParagraph = false
					flush()
				}
			}
		}
	}
	flush()
	return lines
}
