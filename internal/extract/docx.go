package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

// extractDocx parses a .docx payload by reading word/document.xml from the
// ZIP archive. Each non-empty paragraph becomes one segment; Line is the
// paragraph ordinal.
func extractDocx(payload []byte) ([]domain.Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, common.CorruptDocumentError("DOCX", fmt.Errorf("open zip: %w", err))
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, common.CorruptDocumentError("DOCX", fmt.Errorf("word/document.xml not found in archive"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, common.CorruptDocumentError("DOCX", fmt.Errorf("open document.xml: %w", err))
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var segments []domain.Segment
	var currentText strings.Builder
	var inParagraph bool

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
				currentText.Reset()
			case "tab":
				if inParagraph {
					currentText.WriteByte(' ')
				}
			case "br":
				if inParagraph {
					currentText.WriteByte(' ')
				}
			}

		case xml.CharData:
			if inParagraph {
				currentText.Write(t)
			}

		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}
				segments = append(segments, domain.Segment{
					Location:   domain.SourceLocation{Line: len(segments) + 1},
					Text:       text,
					Confidence: 1.0,
				})
			}
		}
	}

	return segments, nil
}

// extractODT parses an .odt payload by reading content.xml from the ZIP
// archive. Headings and paragraphs both come through as segments.
func extractODT(payload []byte) ([]domain.Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, common.CorruptDocumentError("ODT", fmt.Errorf("open zip: %w", err))
	}

	var contentFile *zip.File
	for _, f := range zr.File {
		if f.Name == "content.xml" {
			contentFile = f
			break
		}
	}
	if contentFile == nil {
		return nil, common.CorruptDocumentError("ODT", fmt.Errorf("content.xml not found in archive"))
	}

	rc, err := contentFile.Open()
	if err != nil {
		return nil, common.CorruptDocumentError("ODT", fmt.Errorf("open content.xml: %w", err))
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var segments []domain.Segment
	var currentText strings.Builder
	var inText bool

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			// <text:p> and <text:h> both carry body text
			if t.Name.Local == "p" || t.Name.Local == "h" {
				inText = true
				currentText.Reset()
			}

		case xml.CharData:
			if inText {
				currentText.Write(t)
			}

		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "h") && inText {
				inText = false
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}
				segments = append(segments, domain.Segment{
					Location:   domain.SourceLocation{Line: len(segments) + 1},
					Text:       text,
					Confidence: 1.0,
				})
			}
		}
	}

	return segments, nil
}
