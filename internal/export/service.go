// Package export renders an assembled report as an XLSX workbook for
// reviewers who work in spreadsheets rather than JSON.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

const (
	sheetSummary  = "Summary"
	sheetClauses  = "Clauses"
	sheetEntities = "Entities"
	sheetRisk     = "Risk Factors"

	excerptCap = 200
)

// Service produces XLSX bytes from assembled reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportReportXLSX returns an XLSX workbook (as bytes) with one sheet each
// for the summary, the clauses, the entities, and the risk rationale.
func (s *Service) ExportReportXLSX(report *domain.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: nil report", common.ErrInvalidInput)
	}
	start := time.Now()

	f := excelize.NewFile()
	for _, sheet := range []string{sheetSummary, sheetClauses, sheetEntities, sheetRisk} {
		if index, _ := f.GetSheetIndex(sheet); index == -1 {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}
	}
	_ = f.DeleteSheet("Sheet1")
	activeIndex, _ := f.GetSheetIndex(sheetSummary)
	f.SetActiveSheet(activeIndex)

	writeSummarySheet(f, report)
	writeClausesSheet(f, report)
	writeEntitiesSheet(f, report)
	writeRiskSheet(f, report)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"run_id", report.RunID.String(),
		"clauses", len(report.Clauses),
		"entities", len(report.Entities),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, report *domain.Report) {
	row := 1
	pair := func(label string, v any) {
		write(f, sheetSummary, 1, row, label)
		write(f, sheetSummary, 2, row, v)
		row++
	}

	pair("Title", report.Title)
	pair("Run ID", report.RunID.String())
	pair("Document ID", report.DocumentID.String())
	pair("Generated At", report.GeneratedAt.UTC().Format(time.RFC3339))
	pair("Pipeline Version", report.PipelineVersion)

	var parties []string
	for _, p := range report.Parties {
		if p.Role != "" {
			parties = append(parties, fmt.Sprintf("%s (%s)", p.Name, p.Role))
			continue
		}
		parties = append(parties, p.Name)
	}
	pair("Parties", strings.Join(parties, "; "))
	pair("Effective Date", report.KeyDates.EffectiveDate)
	pair("Termination Date", report.KeyDates.TerminationDate)

	if report.Risk != nil {
		pair("Risk Score", report.Risk.Score)
		pair("Risk Severity", string(report.Risk.Severity))
	}
	degraded := "no"
	if report.Degraded {
		degraded = "yes"
	}
	pair("Degraded", degraded)
	if report.DegradedReason != "" {
		pair("Degraded Reason", report.DegradedReason)
	}
	pair("Summary", report.Summary)

	_ = f.SetColWidth(sheetSummary, "A", "A", 18) // labels
	_ = f.SetColWidth(sheetSummary, "B", "B", 90) // values
}

func writeClausesSheet(f *excelize.File, report *domain.Report) {
	setHeaders(f, sheetClauses, []string{"Type", "From", "To", "Confidence", "Source", "Excerpt"})

	row := 2
	for _, c := range report.Clauses {
		write(f, sheetClauses, 1, row, string(c.Type))
		write(f, sheetClauses, 2, row, c.Segments.From)
		write(f, sheetClauses, 3, row, c.Segments.To)
		write(f, sheetClauses, 4, row, c.Confidence)
		write(f, sheetClauses, 5, row, c.Source)
		write(f, sheetClauses, 6, row, truncate(c.Text, excerptCap))
		row++
	}

	_ = f.SetColWidth(sheetClauses, "A", "A", 18) // type
	_ = f.SetColWidth(sheetClauses, "B", "E", 11)
	_ = f.SetColWidth(sheetClauses, "F", "F", 80) // excerpt
}

func writeEntitiesSheet(f *excelize.File, report *domain.Report) {
	setHeaders(f, sheetEntities, []string{"Type", "Value", "Normalized", "Segment", "Offset", "Length", "Confidence", "Source"})

	row := 2
	for _, e := range report.Entities {
		write(f, sheetEntities, 1, row, string(e.Type))
		write(f, sheetEntities, 2, row, e.Value)
		write(f, sheetEntities, 3, row, e.Normalized)
		write(f, sheetEntities, 4, row, e.Span.Segment)
		write(f, sheetEntities, 5, row, e.Span.Offset)
		write(f, sheetEntities, 6, row, e.Span.Length)
		write(f, sheetEntities, 7, row, e.Confidence)
		write(f, sheetEntities, 8, row, e.Source)
		row++
	}

	_ = f.SetColWidth(sheetEntities, "A", "A", 10)
	_ = f.SetColWidth(sheetEntities, "B", "C", 32) // values
	_ = f.SetColWidth(sheetEntities, "D", "H", 11)
}

func writeRiskSheet(f *excelize.File, report *domain.Report) {
	setHeaders(f, sheetRisk, []string{"Source", "Code", "Detail", "Weight"})
	if report.Risk == nil {
		return
	}

	row := 2
	for _, factor := range report.Risk.Rationale {
		write(f, sheetRisk, 1, row, factor.Source)
		write(f, sheetRisk, 2, row, factor.Code)
		write(f, sheetRisk, 3, row, truncate(factor.Detail, excerptCap))
		write(f, sheetRisk, 4, row, factor.Weight)
		row++
	}
	write(f, sheetRisk, 1, row+1, "Score")
	write(f, sheetRisk, 2, row+1, report.Risk.Score)
	write(f, sheetRisk, 3, row+1, string(report.Risk.Severity))

	_ = f.SetColWidth(sheetRisk, "A", "B", 16)
	_ = f.SetColWidth(sheetRisk, "C", "C", 60) // detail
	_ = f.SetColWidth(sheetRisk, "D", "D", 10)
}

func setHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		write(f, sheet, i+1, 1, h)
	}
}

func write(f *excelize.File, sheet string, col, row int, v any) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	_ = f.SetCellValue(sheet, cell, v)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
