package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/analyze"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/extract"
	"github.com/lexfield/contract-insight/internal/gateway"
	"github.com/lexfield/contract-insight/internal/ocr"
	"github.com/lexfield/contract-insight/internal/redact"
	"github.com/lexfield/contract-insight/internal/risk"
	"github.com/lexfield/contract-insight/internal/store"
	"github.com/lexfield/contract-insight/internal/summarize"
)

// fakeGateway answers per task. Clause verdict calls arrive concurrently,
// so the call log is locked. A blocked task waits out the stage context
// before failing, which is how provider calls die under a stage deadline.
type fakeGateway struct {
	replies  map[string]string
	errs     map[string]error
	attempts map[string][]domain.ProviderAttempt
	provider string
	block    map[string]bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeGateway) Complete(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Task)
	f.mu.Unlock()
	if f.block[req.Task] {
		<-ctx.Done()
		if err := f.errs[req.Task]; err != nil {
			return gateway.Result{Attempts: f.attempts[req.Task]}, err
		}
		return gateway.Result{}, ctx.Err()
	}
	if err := f.errs[req.Task]; err != nil {
		return gateway.Result{Attempts: f.attempts[req.Task]}, err
	}
	provider := f.provider
	if provider == "" {
		provider = "remote"
	}
	return gateway.Result{
		JSON:     []byte(f.replies[req.Task]),
		Provider: provider,
		Attempts: f.attempts[req.Task],
	}, nil
}

type fakeRecognizer struct {
	frags []ocr.Fragment
	err   error
}

func (f *fakeRecognizer) RecognizeBytes(context.Context, []byte, string) ([]ocr.Fragment, error) {
	return f.frags, f.err
}

func (f *fakeRecognizer) RecognizePDFPageBytes(context.Context, []byte, int) ([]ocr.Fragment, error) {
	return f.frags, f.err
}

func (f *fakeRecognizer) WarnConfidence() float64 { return 0.5 }

// fakeRunStore records every persistence call. A non-nil failWith is
// returned from all methods to exercise the warn-only store policy.
type fakeRunStore struct {
	failWith error

	created    []store.RunRecord
	statuses   []constants.RunStatus
	stages     []constants.Stage
	formats    []constants.Format
	report     *domain.Report
	reportID   uuid.UUID
	failedID   uuid.UUID
	failStage  constants.Stage
	failedWith error
}

func (f *fakeRunStore) CreateRun(_ context.Context, rec *store.RunRecord) error {
	f.created = append(f.created, *rec)
	return f.failWith
}

func (f *fakeRunStore) SetRunStatus(_ context.Context, _ uuid.UUID, status constants.RunStatus, stage constants.Stage) error {
	f.statuses = append(f.statuses, status)
	f.stages = append(f.stages, stage)
	return f.failWith
}

func (f *fakeRunStore) SetRunFormat(_ context.Context, _ uuid.UUID, format constants.Format) error {
	f.formats = append(f.formats, format)
	return f.failWith
}

func (f *fakeRunStore) SaveReport(_ context.Context, id uuid.UUID, report *domain.Report) error {
	f.reportID = id
	f.report = report
	return f.failWith
}

func (f *fakeRunStore) MarkRunFailed(_ context.Context, id uuid.UUID, stage constants.Stage, cause error) error {
	f.failedID = id
	f.failStage = stage
	f.failedWith = cause
	return f.failWith
}

func newTestPipeline(cfg common.PipelineConfig, gw *fakeGateway, rec extract.Recognizer, runs RunStore) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg,
		extract.New(extract.Config{}, rec, logger),
		analyze.New(gw, common.AnalysisConfig{}, logger),
		summarize.New(gw, common.SummaryConfig{}, logger),
		risk.New(gw, common.RiskConfig{}, logger),
		redact.New(common.RedactionConfig{}, logger),
		runs, logger)
}

const contractText = `SERVICES AGREEMENT

1. Parties. This Agreement is made by and between Acme Corp and Globex Ltd.

2. Term. This Agreement shall commence on the Effective Date and continue for two years.

3. Termination. Either party may terminate this agreement upon sixty (60) days written notice.

4. Governing Law. This Agreement shall be governed by the laws of the State of Delaware.

Notices shall be sent to legal@acme.example.`

const analyzeReply = `{
	"title": "Services Agreement",
	"parties": [
		{"name": "Acme Corp", "role": "provider"},
		{"name": "Globex Ltd", "role": "customer"}
	],
	"effective_date": "2024-03-01",
	"clauses": [
		{"type": "GOVERNING_LAW", "segment_from": 4, "segment_to": 4, "text": "Delaware law governs.", "confidence": 0.9}
	],
	"entities": [],
	"obligations": [
		{"party": "Acme Corp", "obligations": ["Provide the services"]}
	]
}`

const summaryReply = `{"summary": "Acme Corp provides services to Globex Ltd under Delaware law."}`

const scoreReply = `{"risk_score": 50, "risks": [{"description": "Broad termination right", "severity": "medium"}]}`

const confirmVerdict = `{"verdict": "confirm", "confidence": 0.9}`

func happyGateway() *fakeGateway {
	return &fakeGateway{replies: map[string]string{
		analyze.TaskName:       analyzeReply,
		analyze.VerifyTaskName: confirmVerdict,
		summarize.TaskName:     summaryReply,
		risk.TaskName:          scoreReply,
	}}
}

func txtDoc(text string) *domain.Document {
	return &domain.Document{Filename: "msa.txt", Payload: []byte(text)}
}

func findFactor(rationale []domain.RiskFactor, code string) (domain.RiskFactor, bool) {
	for _, f := range rationale {
		if f.Code == code {
			return f, true
		}
	}
	return domain.RiskFactor{}, false
}

func TestRunFullReport(t *testing.T) {
	gw := happyGateway()
	st := &fakeRunStore{}
	p := newTestPipeline(common.PipelineConfig{}, gw, &fakeRecognizer{}, st)

	report, err := p.Run(context.Background(), txtDoc(contractText))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Title != "Services Agreement" {
		t.Errorf("title = %q", report.Title)
	}
	if len(report.Parties) != 2 || report.KeyDates.EffectiveDate != "2024-03-01" {
		t.Errorf("parties = %+v, key dates = %+v", report.Parties, report.KeyDates)
	}
	if report.Summary != "Acme Corp provides services to Globex Ltd under Delaware law." {
		t.Errorf("summary = %q", report.Summary)
	}
	if report.Degraded || report.DegradedReason != "" {
		t.Errorf("degraded = %v (%q) on a healthy run", report.Degraded, report.DegradedReason)
	}
	if report.PipelineVersion != domain.PipelineVersion {
		t.Errorf("pipeline version = %q", report.PipelineVersion)
	}

	wantClauses := []constants.ClauseType{
		constants.ClauseParties,
		constants.ClauseTerm,
		constants.ClauseTermination,
		constants.ClauseGoverningLaw,
	}
	if len(report.Clauses) != len(wantClauses) {
		t.Fatalf("clauses = %+v", report.Clauses)
	}
	for i, want := range wantClauses {
		if report.Clauses[i].Type != want {
			t.Errorf("clause[%d] = %s, want %s", i, report.Clauses[i].Type, want)
		}
	}
	// the model's governing-law span outranks the rule match
	if gl := report.Clauses[3]; gl.Source != domain.SourceModel || gl.Confidence != 0.9 {
		t.Errorf("governing law clause = %+v", gl)
	}

	if report.Risk == nil {
		t.Fatal("risk assessment missing")
	}
	if report.Risk.Score != 20 || report.Risk.Severity != domain.SeverityLow {
		t.Errorf("risk = %d %s, want 20 LOW", report.Risk.Score, report.Risk.Severity)
	}
	if _, ok := findFactor(report.Risk.Rationale, "MODEL_ASSESSMENT"); !ok {
		t.Errorf("rationale = %+v, missing model factor", report.Risk.Rationale)
	}

	if strings.Contains(report.RedactedText, "legal@acme.example") {
		t.Error("raw email survived redaction")
	}
	if !strings.Contains(report.RedactedText, redact.Token(constants.EntityEmail)) {
		t.Error("email token missing from redacted text")
	}
	if !strings.Contains(report.RedactedText, "Acme Corp") {
		t.Error("org name redacted; ORG is not in the default set")
	}
	if len(report.Redactions.Entries) != 1 || report.Redactions.Entries[0].Type != constants.EntityEmail {
		t.Errorf("redactions = %+v", report.Redactions.Entries)
	}

	wantOrder := []constants.Stage{
		constants.StageExtract,
		constants.StageAnalyze,
		constants.StageSummarizeScore,
		constants.StageRedact,
		constants.StageReport,
	}
	if len(report.Diagnostics.Stages) != len(wantOrder) {
		t.Fatalf("stage timings = %+v", report.Diagnostics.Stages)
	}
	for i, want := range wantOrder {
		if report.Diagnostics.Stages[i].Stage != want {
			t.Errorf("timing[%d] = %s, want %s", i, report.Diagnostics.Stages[i].Stage, want)
		}
	}

	// one document call, a verdict call per surviving rule clause, then the
	// summary and score calls
	if len(gw.calls) != 6 || gw.calls[0] != analyze.TaskName || gw.calls[4] != summarize.TaskName || gw.calls[5] != risk.TaskName {
		t.Fatalf("gateway calls = %v", gw.calls)
	}
	for _, task := range gw.calls[1:4] {
		if task != analyze.VerifyTaskName {
			t.Errorf("gateway calls = %v, want verdict calls after the document call", gw.calls)
		}
	}

	if len(st.created) != 1 || st.created[0].Status != constants.RunStatusIngested {
		t.Fatalf("created runs = %+v", st.created)
	}
	if st.created[0].ID != report.RunID || st.created[0].DocumentID != report.DocumentID {
		t.Errorf("run record ids = %+v, report ids = %s/%s", st.created[0], report.RunID, report.DocumentID)
	}
	if len(st.formats) != 1 || st.formats[0] != constants.FormatTXT {
		t.Errorf("formats = %v", st.formats)
	}
	wantStatuses := []constants.RunStatus{
		constants.RunStatusExtracted,
		constants.RunStatusAnalyzed,
		constants.RunStatusSummarizedScored,
		constants.RunStatusRedacted,
	}
	if len(st.statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v", st.statuses)
	}
	for i, want := range wantStatuses {
		if st.statuses[i] != want {
			t.Errorf("status[%d] = %s, want %s", i, st.statuses[i], want)
		}
	}
	if st.report != report || st.reportID != report.RunID {
		t.Error("report not persisted for the run")
	}
}

func TestRunLowConfidenceOCR(t *testing.T) {
	gw := &fakeGateway{replies: map[string]string{
		analyze.TaskName:       `{"clauses": [], "entities": []}`,
		analyze.VerifyTaskName: confirmVerdict,
		summarize.TaskName:     `{"summary": "A scanned agreement."}`,
		risk.TaskName:          `{"risk_score": 40, "risks": []}`,
	}}
	rec := &fakeRecognizer{frags: []ocr.Fragment{
		{Line: 1, Text: "AGREEMENT", Confidence: 0.3},
		{Line: 2, Text: "The parties agree to the following terms.", Confidence: 0.3},
		{Line: 3, Text: "Either party may terminate this agreement at any time.", Confidence: 0.3},
	}}
	st := &fakeRunStore{}
	p := newTestPipeline(common.PipelineConfig{}, gw, rec, st)

	report, err := p.Run(context.Background(), &domain.Document{
		Filename: "scan.png",
		Payload:  []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(st.formats) != 1 || st.formats[0] != constants.FormatImage {
		t.Errorf("formats = %v", st.formats)
	}
	if report.Title != DefaultTitle {
		t.Errorf("title = %q", report.Title)
	}

	found := false
	for _, w := range report.Diagnostics.Warnings {
		if strings.Contains(w, "low OCR confidence") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, missing OCR confidence note", report.Diagnostics.Warnings)
	}

	f, ok := findFactor(report.Risk.Rationale, "LOW_CONFIDENCE_EXTRACTION")
	if !ok {
		t.Fatalf("rationale = %+v, missing low-confidence factor", report.Risk.Rationale)
	}
	if f.Source != domain.SourceRule {
		t.Errorf("low-confidence factor source = %q", f.Source)
	}
	// rule 39 (two missing clauses + low confidence) and model 40 compose
	if report.Risk.Score != 39 || report.Risk.Severity != domain.SeverityMedium {
		t.Errorf("risk = %d %s, want 39 MEDIUM", report.Risk.Score, report.Risk.Severity)
	}
}

func TestRunProviderFallbackVisible(t *testing.T) {
	gw := happyGateway()
	gw.provider = "local"
	gw.attempts = map[string][]domain.ProviderAttempt{
		analyze.TaskName: {
			{Provider: "remote", Task: analyze.TaskName, Attempt: 1, Err: "connect: refused"},
			{Provider: "remote", Task: analyze.TaskName, Attempt: 2, Err: "connect: refused"},
		},
	}
	p := newTestPipeline(common.PipelineConfig{}, gw, &fakeRecognizer{}, &fakeRunStore{})

	report, err := p.Run(context.Background(), txtDoc(contractText))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Degraded {
		t.Error("degraded = true although the local provider answered")
	}
	if report.Summary == "" {
		t.Error("summary missing")
	}
	if len(report.Diagnostics.Attempts) != 2 {
		t.Fatalf("attempts = %+v", report.Diagnostics.Attempts)
	}
	for i, a := range report.Diagnostics.Attempts {
		if a.Provider != "remote" || a.Task != analyze.TaskName || a.Err == "" {
			t.Errorf("attempt[%d] = %+v", i, a)
		}
	}
}

func TestRunAllProvidersUnavailable(t *testing.T) {
	text := strings.Replace(contractText,
		"\n\nNotices shall be sent to",
		"\n\n5. Suspension. Provider may suspend the services without cause at its sole discretion.\n\nNotices shall be sent to", 1)

	mu := &common.ModelUnavailableError{Attempts: []error{
		errors.New("remote: connect refused"),
		errors.New("local: connect refused"),
	}}
	trail := func(task string) []domain.ProviderAttempt {
		return []domain.ProviderAttempt{
			{Provider: "remote", Task: task, Attempt: 1, Err: "connect refused"},
			{Provider: "local", Task: task, Attempt: 2, Err: "connect refused"},
		}
	}
	gw := &fakeGateway{
		errs: map[string]error{
			analyze.TaskName:   mu,
			summarize.TaskName: mu,
			risk.TaskName:      mu,
		},
		attempts: map[string][]domain.ProviderAttempt{
			analyze.TaskName: trail(analyze.TaskName),
		},
	}
	st := &fakeRunStore{}
	p := newTestPipeline(common.PipelineConfig{}, gw, &fakeRecognizer{}, st)

	report, err := p.Run(context.Background(), txtDoc(text))
	if err != nil {
		t.Fatalf("Run: %v, want a degraded report", err)
	}

	if !report.Degraded {
		t.Fatal("degraded = false with every provider down")
	}
	if !strings.Contains(report.DegradedReason, "summary unavailable") {
		t.Errorf("degraded reason = %q", report.DegradedReason)
	}
	if report.Summary != "" {
		t.Errorf("summary = %q, want empty", report.Summary)
	}

	present := map[constants.ClauseType]bool{}
	for _, c := range report.Clauses {
		if c.Source != domain.SourceRule {
			t.Errorf("clause %s source = %q, want rule", c.Type, c.Source)
		}
		present[c.Type] = true
	}
	for _, want := range constants.RequiredClauseTypes {
		if !present[want] {
			t.Errorf("required clause %s missing from degraded report", want)
		}
	}

	// two one-sided terms at full rule weight, no model subscore
	if report.Risk.Score != 16 || report.Risk.Severity != domain.SeverityLow {
		t.Errorf("risk = %d %s, want 16 LOW", report.Risk.Score, report.Risk.Severity)
	}
	if _, ok := findFactor(report.Risk.Rationale, risk.CodeModelUnavailable); !ok {
		t.Errorf("rationale = %+v, missing degradation marker", report.Risk.Rationale)
	}

	if !strings.Contains(report.RedactedText, redact.Token(constants.EntityEmail)) {
		t.Error("redaction skipped on degraded run")
	}

	summarizeAttempts := 0
	for _, a := range report.Diagnostics.Attempts {
		if a.Task == summarize.TaskName {
			summarizeAttempts++
			if a.Provider != "remote" && a.Provider != "local" {
				t.Errorf("summarize attempt provider = %q", a.Provider)
			}
		}
	}
	if summarizeAttempts != 2 {
		t.Errorf("attempts = %+v, want 2 summarize failures recorded", report.Diagnostics.Attempts)
	}

	degradedWarning := false
	for _, w := range report.Diagnostics.Warnings {
		if strings.Contains(w, "analysis degraded to rule findings") {
			degradedWarning = true
		}
	}
	if !degradedWarning {
		t.Errorf("warnings = %v", report.Diagnostics.Warnings)
	}

	if st.report == nil || !st.report.Degraded {
		t.Error("degraded report not persisted")
	}
	if len(st.statuses) == 0 || st.statuses[len(st.statuses)-1] != constants.RunStatusRedacted {
		t.Errorf("statuses = %v", st.statuses)
	}
}

func TestRunStageTimeout(t *testing.T) {
	gw := happyGateway()
	gw.block = map[string]bool{summarize.TaskName: true}
	// a blocked provider call dies as exhaustion, which must surface as a
	// timeout rather than a degraded report
	gw.errs = map[string]error{
		summarize.TaskName: &common.ModelUnavailableError{Attempts: []error{errors.New("remote: deadline")}},
	}
	st := &fakeRunStore{}
	p := newTestPipeline(common.PipelineConfig{SummarizeScoreTimeoutSec: 1}, gw, &fakeRecognizer{}, st)

	report, err := p.Run(context.Background(), txtDoc(contractText))
	if report != nil {
		t.Fatal("report returned from a timed-out run")
	}

	var te *common.StageTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want StageTimeoutError", err)
	}
	if te.Stage != constants.StageSummarizeScore {
		t.Errorf("stage = %s", te.Stage)
	}
	if st.failStage != constants.StageSummarizeScore || st.failedWith == nil {
		t.Errorf("failure record = %s / %v", st.failStage, st.failedWith)
	}
	if len(st.statuses) != 2 || st.statuses[1] != constants.RunStatusAnalyzed {
		t.Errorf("statuses = %v", st.statuses)
	}
}

func TestRunCorruptDocument(t *testing.T) {
	st := &fakeRunStore{}
	p := newTestPipeline(common.PipelineConfig{}, happyGateway(), &fakeRecognizer{}, st)

	report, err := p.Run(context.Background(), &domain.Document{
		Filename: "broken.docx",
		Payload:  []byte("this is not a zip archive"),
	})
	if report != nil {
		t.Fatal("report returned for a corrupt document")
	}
	if !errors.Is(err, common.ErrCorruptDocument) {
		t.Fatalf("err = %v, want ErrCorruptDocument", err)
	}
	if st.failStage != constants.StageExtract {
		t.Errorf("failure stage = %s", st.failStage)
	}
	if len(st.statuses) != 0 {
		t.Errorf("statuses = %v, want none", st.statuses)
	}
}

func TestRunEmptyDocument(t *testing.T) {
	st := &fakeRunStore{}
	p := newTestPipeline(common.PipelineConfig{}, happyGateway(), &fakeRecognizer{}, st)

	if _, err := p.Run(context.Background(), &domain.Document{Filename: "empty.txt"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(st.created) != 0 {
		t.Error("run record created for rejected input")
	}
}

func TestRunStoreFailuresAreNonFatal(t *testing.T) {
	st := &fakeRunStore{failWith: errors.New("database is locked")}
	p := newTestPipeline(common.PipelineConfig{}, happyGateway(), &fakeRecognizer{}, st)

	report, err := p.Run(context.Background(), txtDoc(contractText))
	if err != nil {
		t.Fatalf("Run: %v, store trouble must not fail the run", err)
	}
	if report == nil || report.Risk == nil {
		t.Fatal("report incomplete")
	}
}

func TestRunWithoutStore(t *testing.T) {
	p := newTestPipeline(common.PipelineConfig{}, happyGateway(), &fakeRecognizer{}, nil)

	report, err := p.Run(context.Background(), txtDoc(contractText))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == uuid.Nil {
		t.Error("run id not assigned")
	}
}
