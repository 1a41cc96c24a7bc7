// Package pipeline runs one contract document through extract, analyze,
// summarize and score, redact, and report assembly. Stages run strictly
// forward under independent deadlines. Losing every model provider mid-run
// degrades the report instead of failing the run; extraction and redaction
// failures are terminal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/analyze"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/extract"
	"github.com/lexfield/contract-insight/internal/metrics"
	"github.com/lexfield/contract-insight/internal/redact"
	"github.com/lexfield/contract-insight/internal/risk"
	"github.com/lexfield/contract-insight/internal/store"
	"github.com/lexfield/contract-insight/internal/summarize"
)

// DefaultTitle is used when the model supplies no contract title.
const DefaultTitle = "Untitled Contract"

// RunStore is the slice of the run store the orchestrator needs.
// *store.Store satisfies it; tests substitute fakes.
type RunStore interface {
	CreateRun(ctx context.Context, rec *store.RunRecord) error
	SetRunStatus(ctx context.Context, id uuid.UUID, status constants.RunStatus, stage constants.Stage) error
	SetRunFormat(ctx context.Context, id uuid.UUID, format constants.Format) error
	SaveReport(ctx context.Context, id uuid.UUID, report *domain.Report) error
	MarkRunFailed(ctx context.Context, id uuid.UUID, stage constants.Stage, cause error) error
}

// Pipeline coordinates the stage components for one run at a time. It holds
// no per-run state, so a single Pipeline serves concurrent runs.
type Pipeline struct {
	cfg        common.PipelineConfig
	extractor  *extract.Extractor
	analyzer   *analyze.Analyzer
	summarizer *summarize.Summarizer
	scorer     *risk.Scorer
	redactor   *redact.Redactor
	runs       RunStore
	logger     *slog.Logger
}

// New wires the stage components into a pipeline. runs may be nil, in which
// case run state is not persisted.
func New(cfg common.PipelineConfig, ex *extract.Extractor, an *analyze.Analyzer, su *summarize.Summarizer, sc *risk.Scorer, re *redact.Redactor, runs RunStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		extractor:  ex,
		analyzer:   an,
		summarizer: su,
		scorer:     sc,
		redactor:   re,
		runs:       runs,
		logger:     logger,
	}
}

// run accumulates the state of one walk through the stage machine.
type run struct {
	id     uuid.UUID
	doc    *domain.Document
	status constants.RunStatus
	log    *slog.Logger

	timings        []domain.StageTiming
	attempts       []domain.ProviderAttempt
	warnings       []string
	degraded       bool
	degradedReason string
}

// Run executes the full pipeline for one document and returns the assembled
// report. A degraded report comes back with a nil error; the error return is
// reserved for runs that reached FAILED.
func (p *Pipeline) Run(ctx context.Context, doc *domain.Document) (*domain.Report, error) {
	if doc == nil || len(doc.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty document", common.ErrInvalidInput)
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	r := &run{id: uuid.New(), doc: doc, status: constants.RunStatusIngested}
	r.log = p.logger.With("run_id", r.id, "document_id", doc.ID)
	r.log.Info("pipeline.run.start",
		"filename", doc.Filename,
		"declared_format", string(doc.DeclaredFormat),
		"bytes", len(doc.Payload),
	)
	metrics.DocumentBytes.Observe(float64(len(doc.Payload)))
	started := time.Now()

	if p.runs != nil {
		rec := &store.RunRecord{
			ID:         r.id,
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Format:     doc.DeclaredFormat,
			Status:     constants.RunStatusIngested,
		}
		if err := p.runs.CreateRun(ctx, rec); err != nil {
			r.log.Warn("pipeline.store.create", "err", err)
		}
	}

	// Extraction. Format resolution happens here so the run record carries
	// the detected format even when extraction itself fails later.
	var exRes extract.Result
	err := p.stage(ctx, r, constants.StageExtract, func(sctx context.Context) error {
		format, derr := p.extractor.Detect(doc.Filename, doc.Payload, doc.DeclaredFormat)
		if derr != nil {
			return derr
		}
		doc.DetectedFormat = format
		if p.runs != nil {
			if serr := p.runs.SetRunFormat(sctx, r.id, format); serr != nil {
				r.log.Warn("pipeline.store.format", "err", serr)
			}
		}
		var xerr error
		exRes, xerr = p.extractor.Extract(sctx, doc)
		return xerr
	})
	if err != nil {
		return nil, p.fail(ctx, r, constants.StageExtract, err)
	}
	segments := exRes.Segments
	r.warnings = append(r.warnings, exRes.Warnings...)
	r.log.Info("pipeline.extract.done",
		"format", string(doc.DetectedFormat),
		"segments", len(segments),
		"warnings", len(exRes.Warnings),
	)
	if err := p.advance(ctx, r, constants.RunStatusExtracted, constants.StageExtract); err != nil {
		return nil, p.fail(ctx, r, constants.StageExtract, err)
	}

	// Analysis. The analyzer absorbs provider exhaustion on its own; a
	// degraded analysis only fails the stage when the stage clock caused it.
	var analysis analyze.Analysis
	err = p.stage(ctx, r, constants.StageAnalyze, func(sctx context.Context) error {
		var aerr error
		analysis, aerr = p.analyzer.Analyze(sctx, segments)
		if aerr == nil && analysis.Degraded && sctx.Err() != nil {
			return fmt.Errorf("model pass aborted: %w", sctx.Err())
		}
		return aerr
	})
	if err != nil {
		return nil, p.fail(ctx, r, constants.StageAnalyze, err)
	}
	r.attempts = append(r.attempts, analysis.Attempts...)
	if analysis.Degraded {
		r.warnings = append(r.warnings, "analysis degraded to rule findings: model providers unavailable")
	}
	r.log.Info("pipeline.analyze.done",
		"clauses", len(analysis.Clauses),
		"entities", len(analysis.Entities),
		"degraded", analysis.Degraded,
	)
	if err := p.advance(ctx, r, constants.RunStatusAnalyzed, constants.StageAnalyze); err != nil {
		return nil, p.fail(ctx, r, constants.StageAnalyze, err)
	}

	// Summary and risk share one stage and one deadline. Provider exhaustion
	// here degrades the run: empty summary, rule-only risk, and the walk
	// continues through redaction.
	var (
		summary    string
		assessment domain.RiskAssessment
	)
	err = p.stage(ctx, r, constants.StageSummarizeScore, func(sctx context.Context) error {
		text, serr := p.summarizer.Summarize(sctx, segments, analysis.Clauses)
		switch {
		case serr == nil:
			summary = text
		default:
			var mu *common.ModelUnavailableError
			if !errors.As(serr, &mu) || sctx.Err() != nil {
				return serr
			}
			r.log.Warn("pipeline.summary.unavailable", "attempts", len(mu.Attempts))
			r.degraded = true
			r.degradedReason = "summary unavailable: " + mu.Error()
			appendFailureAttempts(r, summarize.TaskName, mu)
		}

		var rerr error
		assessment, rerr = p.scorer.Score(sctx, segments, analysis.Clauses, analysis.Entities)
		return rerr
	})
	if err != nil {
		return nil, p.fail(ctx, r, constants.StageSummarizeScore, err)
	}
	for _, f := range assessment.Rationale {
		if f.Code == risk.CodeModelUnavailable {
			r.degraded = true
			if r.degradedReason == "" {
				r.degradedReason = "risk model subscore unavailable; rule findings carry full weight"
			}
		}
	}
	r.log.Info("pipeline.summarize_score.done",
		"summary_chars", len(summary),
		"score", assessment.Score,
		"severity", string(assessment.Severity),
		"degraded", r.degraded,
	)
	if err := p.advance(ctx, r, constants.RunStatusSummarizedScored, constants.StageSummarizeScore); err != nil {
		return nil, p.fail(ctx, r, constants.StageSummarizeScore, err)
	}

	// Redaction is deterministic and fatal on malformed spans.
	var (
		redacted   string
		redactions domain.RedactionMap
	)
	err = p.stage(ctx, r, constants.StageRedact, func(context.Context) error {
		var rerr error
		redacted, redactions, rerr = p.redactor.Redact(segments, analysis.Entities)
		return rerr
	})
	if err != nil {
		return nil, p.fail(ctx, r, constants.StageRedact, err)
	}
	r.log.Info("pipeline.redact.done", "entries", len(redactions.Entries))
	if err := p.advance(ctx, r, constants.RunStatusRedacted, constants.StageRedact); err != nil {
		return nil, p.fail(ctx, r, constants.StageRedact, err)
	}

	// Report assembly and persistence close the walk.
	if !constants.CanTransition(r.status, constants.RunStatusReported) {
		return nil, p.fail(ctx, r, constants.StageReport, fmt.Errorf("illegal transition %s -> %s", r.status, constants.RunStatusReported))
	}
	assembleStart := time.Now()
	report := p.assemble(r, analysis, summary, assessment, redacted, redactions)
	r.timings = append(r.timings, domain.StageTiming{
		Stage:  constants.StageReport,
		Millis: time.Since(assembleStart).Milliseconds(),
	})
	report.Diagnostics.Stages = r.timings
	r.status = constants.RunStatusReported
	if p.runs != nil {
		if err := p.runs.SaveReport(context.WithoutCancel(ctx), r.id, report); err != nil {
			r.log.Warn("pipeline.store.report", "err", err)
		}
	}

	metrics.RunsTotal.WithLabelValues("reported").Inc()
	if r.degraded {
		metrics.RunsDegradedTotal.Inc()
	}
	r.log.Info("pipeline.run.done",
		"status", string(r.status),
		"degraded", r.degraded,
		"score", assessment.Score,
		"total_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

// stage runs one stage under its configured deadline and records its
// duration. A deadline hit surfaces as StageTimeoutError unless the parent
// context failed first.
func (p *Pipeline) stage(ctx context.Context, r *run, stage constants.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout(stage))
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	elapsed := time.Since(start)
	r.timings = append(r.timings, domain.StageTiming{Stage: stage, Millis: elapsed.Milliseconds()})
	metrics.StageDurationSeconds.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &common.StageTimeoutError{Stage: stage, Cause: err}
	}
	return err
}

// advance moves the run to its next status and persists the transition.
// Persistence failures are logged, not fatal: the run outcome should not
// depend on the bookkeeping store.
func (p *Pipeline) advance(ctx context.Context, r *run, to constants.RunStatus, stage constants.Stage) error {
	if !constants.CanTransition(r.status, to) {
		return fmt.Errorf("illegal transition %s -> %s", r.status, to)
	}
	r.status = to
	if p.runs != nil {
		if err := p.runs.SetRunStatus(ctx, r.id, to, stage); err != nil {
			r.log.Warn("pipeline.store.status", "status", string(to), "err", err)
		}
	}
	return nil
}

// fail records the terminal failure and hands the cause back to the caller.
func (p *Pipeline) fail(ctx context.Context, r *run, stage constants.Stage, err error) error {
	r.log.Error("pipeline.run.failed", "stage", string(stage), "err", err)
	metrics.RunsTotal.WithLabelValues("failed").Inc()
	r.status = constants.RunStatusFailed
	if p.runs != nil {
		if serr := p.runs.MarkRunFailed(context.WithoutCancel(ctx), r.id, stage, err); serr != nil {
			r.log.Warn("pipeline.store.fail", "err", serr)
		}
	}
	return err
}

func (p *Pipeline) assemble(r *run, analysis analyze.Analysis, summary string, assessment domain.RiskAssessment, redacted string, redactions domain.RedactionMap) *domain.Report {
	title := analysis.Title
	if title == "" {
		title = DefaultTitle
	}
	return &domain.Report{
		DocumentID:     r.doc.ID,
		RunID:          r.id,
		Title:          title,
		Parties:        analysis.Parties,
		KeyDates:       analysis.KeyDates,
		Summary:        summary,
		Obligations:    analysis.Obligations,
		Clauses:        analysis.Clauses,
		Entities:       analysis.Entities,
		Risk:           &assessment,
		RedactedText:   redacted,
		Redactions:     redactions,
		Degraded:       r.degraded,
		DegradedReason: r.degradedReason,
		Diagnostics: domain.Diagnostics{
			Attempts: r.attempts,
			Warnings: r.warnings,
		},
		GeneratedAt:     time.Now().UTC(),
		PipelineVersion: domain.PipelineVersion,
	}
}

// appendFailureAttempts folds the per-provider failures carried by a
// ModelUnavailableError into the run's attempt trail. Gateway failure
// entries are prefixed with the provider name, which is split back out.
func appendFailureAttempts(r *run, task string, mu *common.ModelUnavailableError) {
	for i, aErr := range mu.Attempts {
		provider, _, found := strings.Cut(aErr.Error(), ": ")
		if !found {
			provider = ""
		}
		r.attempts = append(r.attempts, domain.ProviderAttempt{
			Provider: provider,
			Task:     task,
			Attempt:  i + 1,
			Err:      aErr.Error(),
		})
	}
}
