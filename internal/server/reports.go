package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleGetReport returns the stored report for a finished run. Degraded
// reports read back with 200: the degraded flag lives in the body, and the
// 422 distinction only matters on the analyze call itself.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "run id must be a UUID")
		return
	}

	report, err := s.reports.GetReport(r.Context(), id)
	if err != nil {
		s.handlePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExportReport renders the stored report as an XLSX download.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "run id must be a UUID")
		return
	}

	report, err := s.reports.GetReport(r.Context(), id)
	if err != nil {
		s.handlePipelineError(w, err)
		return
	}

	xlsx, err := s.exporter.ExportReportXLSX(report)
	if err != nil {
		s.handlePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+id.String()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}
