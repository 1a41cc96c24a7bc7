package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

// extractXLSX reads every sheet in workbook order. Each non-empty row
// becomes one segment with sheet and row provenance; cells join on a
// single tab so column boundaries survive into the text.
func extractXLSX(payload []byte) ([]domain.Segment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, common.CorruptDocumentError("XLSX", fmt.Errorf("open workbook: %w", err))
	}
	defer func() {
		_ = f.Close()
	}()

	var segments []domain.Segment
	for sheetIdx, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, common.CorruptDocumentError("XLSX", fmt.Errorf("read sheet %q: %w", sheet, err))
		}
		for rowIdx, row := range rows {
			text := joinCells(row)
			if text == "" {
				continue
			}
			segments = append(segments, domain.Segment{
				Location: domain.SourceLocation{
					Sheet:      sheet,
					SheetIndex: sheetIdx + 1,
					Row:        rowIdx + 1,
				},
				Text:       text,
				Confidence: 1.0,
			})
		}
	}
	return segments, nil
}

// extractCSV reads the payload as one sheet of rows. Row provenance is
// the physical line the record starts on; the reader skips blank lines,
// so FieldPos keeps the numbering honest.
func extractCSV(payload []byte) ([]domain.Segment, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1 // ragged rows are fine

	var segments []domain.Segment
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, common.CorruptDocumentError("CSV", err)
		}
		text := joinCells(row)
		if text == "" {
			continue
		}
		line, _ := r.FieldPos(0)
		segments = append(segments, domain.Segment{
			Location:   domain.SourceLocation{Row: line},
			Text:       text,
			Confidence: 1.0,
		})
	}
	return segments, nil
}

func joinCells(cells []string) string {
	var kept []string
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "\t")
}
