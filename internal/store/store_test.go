package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(t *testing.T, s *Store) *RunRecord {
	t.Helper()
	rec := &RunRecord{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		Filename:   "msa.pdf",
		Format:     constants.FormatPDF,
		Status:     constants.RunStatusIngested,
	}
	if err := s.CreateRun(context.Background(), rec); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return rec
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	rec := newRun(t, s)

	got, err := s.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != constants.RunStatusIngested {
		t.Errorf("status = %s, want INGESTED", got.Status)
	}
	if got.Filename != "msa.pdf" || got.Format != constants.FormatPDF {
		t.Errorf("row = %+v, want filename/format preserved", got)
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Error("timestamps not stamped on create")
	}

	if err := s.SetRunStatus(ctx, rec.ID, constants.RunStatusExtracted, constants.StageExtract); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err = s.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != constants.RunStatusExtracted || got.Stage != constants.StageExtract {
		t.Errorf("after transition: status=%s stage=%s", got.Status, got.Stage)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	rec := newRun(t, s)

	report := &domain.Report{
		DocumentID:      rec.DocumentID,
		RunID:           rec.ID,
		Title:           "Master Services Agreement",
		Summary:         "Two parties, one renewal clause.",
		RedactedText:    "Contact [REDACTED_EMAIL] for notices.",
		Risk:            &domain.RiskAssessment{Score: 24, Severity: domain.SeverityLow},
		GeneratedAt:     time.Now().UTC(),
		PipelineVersion: domain.PipelineVersion,
	}
	if err := s.SaveReport(ctx, rec.ID, report); err != nil {
		t.Fatalf("save report: %v", err)
	}

	run, err := s.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != constants.RunStatusReported {
		t.Errorf("status = %s, want REPORTED", run.Status)
	}
	if len(run.ReportJSON) == 0 {
		t.Fatal("report_json not written")
	}

	got, err := s.GetReport(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.Title != report.Title || got.Summary != report.Summary {
		t.Errorf("report round-trip: got %q / %q", got.Title, got.Summary)
	}
	if got.Risk == nil || got.Risk.Score != 24 {
		t.Errorf("risk round-trip: %+v", got.Risk)
	}
	if got.RunID != rec.ID {
		t.Errorf("run id = %s, want %s", got.RunID, rec.ID)
	}
}

func TestGetReportBeforeCompletion(t *testing.T) {
	s := testStore(t)
	rec := newRun(t, s)

	_, err := s.GetReport(context.Background(), rec.ID)
	if !errors.Is(err, common.ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound for a run without a report", err)
	}
}

func TestMarkRunFailed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	rec := newRun(t, s)

	cause := errors.New("corrupt document: PDF: bad xref")
	if err := s.MarkRunFailed(ctx, rec.ID, constants.StageExtract, cause); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := s.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != constants.RunStatusFailed || got.Stage != constants.StageExtract {
		t.Errorf("status=%s stage=%s, want FAILED/extract", got.Status, got.Stage)
	}
	if got.Error != cause.Error() {
		t.Errorf("error = %q, want %q", got.Error, cause.Error())
	}
}

func TestRunNotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uuid.New()

	if _, err := s.GetRun(ctx, id); !errors.Is(err, common.ErrRunNotFound) {
		t.Errorf("GetRun err = %v, want ErrRunNotFound", err)
	}
	if err := s.SetRunStatus(ctx, id, constants.RunStatusExtracted, constants.StageExtract); !errors.Is(err, common.ErrRunNotFound) {
		t.Errorf("SetRunStatus err = %v, want ErrRunNotFound", err)
	}
	if err := s.MarkRunFailed(ctx, id, constants.StageExtract, errors.New("x")); !errors.Is(err, common.ErrRunNotFound) {
		t.Errorf("MarkRunFailed err = %v, want ErrRunNotFound", err)
	}
}

func TestSetRunFormat(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	rec := &RunRecord{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		Filename:   "scan",
		Status:     constants.RunStatusIngested,
	}
	if err := s.CreateRun(ctx, rec); err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := s.SetRunFormat(ctx, rec.ID, constants.FormatImage); err != nil {
		t.Fatalf("set format: %v", err)
	}
	got, err := s.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Format != constants.FormatImage {
		t.Errorf("format = %s, want IMAGE", got.Format)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := newRun(t, s)
	time.Sleep(5 * time.Millisecond)
	second := newRun(t, s)

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
	}

	runs, err = s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != second.ID {
		t.Errorf("limit 1: got %d rows", len(runs))
	}
}
