package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

type fakeRunner struct {
	report *domain.Report
	err    error
	doc    *domain.Document
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, doc *domain.Document) (*domain.Report, error) {
	f.calls++
	f.doc = doc
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeReports struct {
	reports map[uuid.UUID]*domain.Report
	err     error
	pingErr error
}

func (f *fakeReports) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	report, ok := f.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrRunNotFound, id)
	}
	return report, nil
}

func (f *fakeReports) Ping(ctx context.Context) error { return f.pingErr }

type fakeExporter struct {
	data []byte
	err  error
}

func (f *fakeExporter) ExportReportXLSX(report *domain.Report) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func newTestServer(run *fakeRunner, reports *fakeReports, exp *fakeExporter) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(run, reports, exp, common.ServerConfig{MaxUploadMB: 1}, logger)
}

func sampleReport() *domain.Report {
	return &domain.Report{
		DocumentID: uuid.New(),
		RunID:      uuid.New(),
		Title:      "Services Agreement",
		Summary:    "Acme Corp provides services to Globex Ltd.",
		Clauses:    []domain.ClauseMatch{},
		Entities:   []domain.EntityMatch{},
		Risk: &domain.RiskAssessment{
			Score:    20,
			Severity: domain.SeverityLow,
		},
		RedactedText:    "This Agreement is between the parties.",
		GeneratedAt:     time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		PipelineVersion: domain.PipelineVersion,
	}
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return er
}

func multipartBody(t *testing.T, field, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestAnalyzeRawBody(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze?filename=msa.txt", strings.NewReader("contract text"))
	rec := do(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var report domain.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.RunID != run.report.RunID {
		t.Errorf("run_id = %s, want %s", report.RunID, run.report.RunID)
	}
	if run.doc == nil {
		t.Fatal("runner never received a document")
	}
	if run.doc.Filename != "msa.txt" {
		t.Errorf("filename = %q, want msa.txt", run.doc.Filename)
	}
	if string(run.doc.Payload) != "contract text" {
		t.Errorf("payload = %q", run.doc.Payload)
	}
	if run.doc.DeclaredFormat != "" {
		t.Errorf("declared format = %q, want empty", run.doc.DeclaredFormat)
	}
}

func TestAnalyzeMultipart(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	body, contentType := multipartBody(t, "file", "msa.pdf", []byte("%PDF-1.7 payload"))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if run.doc.Filename != "msa.pdf" {
		t.Errorf("filename = %q, want msa.pdf", run.doc.Filename)
	}
	if string(run.doc.Payload) != "%PDF-1.7 payload" {
		t.Errorf("payload = %q", run.doc.Payload)
	}
}

func TestAnalyzeMultipartMissingFileField(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	body, contentType := multipartBody(t, "document", "msa.pdf", []byte("payload"))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != codeInvalidInput {
		t.Errorf("code = %q, want %q", er.Code, codeInvalidInput)
	}
	if run.calls != 0 {
		t.Errorf("runner called %d times, want 0", run.calls)
	}
}

func TestAnalyzeFormatOverride(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze?format=pdf", strings.NewReader("raw bytes"))
	rec := do(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if run.doc.DeclaredFormat != constants.FormatPDF {
		t.Errorf("declared format = %q, want PDF", run.doc.DeclaredFormat)
	}
}

func TestAnalyzeUnknownFormat(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze?format=zip", strings.NewReader("raw bytes"))
	rec := do(srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if run.calls != 0 {
		t.Errorf("runner called %d times, want 0", run.calls)
	}
}

func TestAnalyzeEmptyBody(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	rec := do(srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != codeInvalidInput {
		t.Errorf("code = %q, want %q", er.Code, codeInvalidInput)
	}
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	run := &fakeRunner{report: sampleReport()}
	srv := newTestServer(run, &fakeReports{}, &fakeExporter{})

	big := bytes.Repeat([]byte("a"), (1<<20)+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(big))
	rec := do(srv, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != codeUploadTooLarge {
		t.Errorf("code = %q, want %q", er.Code, codeUploadTooLarge)
	}
}

func TestAnalyzeDegradedReport(t *testing.T) {
	report := sampleReport()
	report.Degraded = true
	report.DegradedReason = "summary unavailable: model unavailable after 2 provider attempts"
	report.Summary = ""
	srv := newTestServer(&fakeRunner{report: report}, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("contract text"))
	rec := do(srv, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var got domain.Report
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !got.Degraded || got.DegradedReason == "" {
		t.Errorf("degraded = %v reason = %q, want degraded with reason", got.Degraded, got.DegradedReason)
	}
	if got.Title != report.Title {
		t.Errorf("title = %q, body should still carry the full report", got.Title)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unsupported format",
			err:        common.UnsupportedFormatError("ZIP"),
			wantStatus: http.StatusBadRequest,
			wantCode:   codeUnsupportedFormat,
		},
		{
			name:       "corrupt document",
			err:        common.CorruptDocumentError("DOCX", errors.New("zip: not a valid zip file")),
			wantStatus: http.StatusBadRequest,
			wantCode:   codeCorruptDocument,
		},
		{
			name:       "model unavailable",
			err:        &common.ModelUnavailableError{Attempts: []error{errors.New("remote: connect refused")}},
			wantStatus: http.StatusBadGateway,
			wantCode:   codeModelUnavailable,
		},
		{
			// the timeout wraps a provider failure, and the deadline wins
			name: "stage timeout",
			err: &common.StageTimeoutError{
				Stage: constants.StageSummarizeScore,
				Cause: &common.ModelUnavailableError{Attempts: []error{errors.New("remote: connect refused")}},
			},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   codeStageTimeout,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternalError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeRunner{err: tc.err}, &fakeReports{}, &fakeExporter{})
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("contract text"))
			rec := do(srv, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if er := decodeError(t, rec); er.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", er.Code, tc.wantCode)
			}
		})
	}
}

func TestGetReport(t *testing.T) {
	id := uuid.New()
	report := sampleReport()
	report.RunID = id
	reports := &fakeReports{reports: map[uuid.UUID]*domain.Report{id: report}}
	srv := newTestServer(&fakeRunner{}, reports, &fakeExporter{})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/"+id.String(), nil)
	rec := do(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got domain.Report
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.RunID != id {
		t.Errorf("run_id = %s, want %s", got.RunID, id)
	}
}

func TestGetReportUnknownRun(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/"+uuid.NewString(), nil)
	rec := do(srv, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != codeRunNotFound {
		t.Errorf("code = %q, want %q", er.Code, codeRunNotFound)
	}
}

func TestGetReportBadID(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/not-a-uuid", nil)
	rec := do(srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExportReport(t *testing.T) {
	id := uuid.New()
	report := sampleReport()
	report.RunID = id
	reports := &fakeReports{reports: map[uuid.UUID]*domain.Report{id: report}}
	exp := &fakeExporter{data: []byte("workbook bytes")}
	srv := newTestServer(&fakeRunner{}, reports, exp)

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/"+id.String()+"/export", nil)
	rec := do(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "report-"+id.String()+".xlsx") {
		t.Errorf("disposition = %q", disposition)
	}
	if !bytes.Equal(rec.Body.Bytes(), exp.data) {
		t.Errorf("body = %q, want workbook bytes", rec.Body.Bytes())
	}
}

func TestExportReportUnknownRun(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeReports{}, &fakeExporter{})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/"+uuid.NewString()+"/export", nil)
	rec := do(srv, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeReports{}, &fakeExporter{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	srv = newTestServer(&fakeRunner{}, &fakeReports{pingErr: errors.New("database is locked")}, &fakeExporter{})
	rec = do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeReports{}, &fakeExporter{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics body missing default collectors")
	}
}
