package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/gateway"
)

// TaskName identifies document analysis calls in provider attempt records.
const TaskName = "analyze"

// VerifyTaskName identifies per-candidate clause verdict calls in provider
// attempt records.
const VerifyTaskName = "verify_clause"

// DefaultModelOverrideThreshold applies when configuration leaves the
// override threshold unset.
const DefaultModelOverrideThreshold = 0.6

// DefaultModelConcurrency bounds in-flight verdict calls when configuration
// leaves the cap unset.
const DefaultModelConcurrency = 3

// Completer is the slice of the model gateway the analyzer needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

// Analysis is the reconciled output of the rule pass and the model pass.
// Degraded means every provider failed and only rule findings are present.
type Analysis struct {
	Title       string
	Parties     []domain.Party
	KeyDates    domain.KeyDates
	Clauses     []domain.ClauseMatch
	Entities    []domain.EntityMatch
	Obligations []domain.PartyObligations
	Degraded    bool
	Attempts    []domain.ProviderAttempt
}

// Analyzer identifies clauses and entities in extracted segments. The rule
// pass always runs; the model pass refines it when a provider answers.
type Analyzer struct {
	gw          Completer
	threshold   float64
	concurrency int
	logger      *slog.Logger
}

func New(gw Completer, cfg common.AnalysisConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.ModelOverrideThreshold
	if threshold <= 0 {
		threshold = DefaultModelOverrideThreshold
	}
	concurrency := cfg.ModelConcurrency
	if concurrency <= 0 {
		concurrency = DefaultModelConcurrency
	}
	return &Analyzer{gw: gw, threshold: threshold, concurrency: concurrency, logger: logger}
}

// Analyze runs both passes over the segments: rules first, then the model
// pass as one document-level call plus a verdict call per rule candidate.
// Provider exhaustion is not an error here: the rule findings still stand,
// flagged as degraded when the document call got no answer. Context
// cancellation and malformed document replies do fail the call.
func (a *Analyzer) Analyze(ctx context.Context, segments []domain.Segment) (Analysis, error) {
	if len(segments) == 0 {
		return Analysis{}, fmt.Errorf("%w: no segments to analyze", common.ErrInvalidInput)
	}

	res := Analysis{
		Clauses:  matchClauses(segments),
		Entities: matchEntities(segments),
	}
	a.logger.Info("analyze.rules.done",
		"clauses", len(res.Clauses),
		"entities", len(res.Entities))

	reply, gwRes, err := a.modelPass(ctx, segments)
	res.Attempts = gwRes.Attempts
	if err != nil {
		var mu *common.ModelUnavailableError
		if errors.As(err, &mu) {
			a.logger.Warn("analyze.model.unavailable", "attempts", len(mu.Attempts))
			res.Degraded = true
			sortFindings(&res)
			return res, nil
		}
		return Analysis{}, err
	}

	res.Title = reply.Title
	res.KeyDates = domain.KeyDates{
		EffectiveDate:   reply.EffectiveDate,
		TerminationDate: reply.TerminationDate,
	}
	for _, p := range reply.Parties {
		if p.Name == "" {
			continue
		}
		res.Parties = append(res.Parties, domain.Party{Name: p.Name, Role: p.Role})
	}
	for _, o := range reply.Obligations {
		if o.Party == "" {
			continue
		}
		res.Obligations = append(res.Obligations, domain.PartyObligations{
			Party:       o.Party,
			Obligations: o.Obligations,
		})
	}

	accepted := 0
	for _, mc := range reply.Clauses {
		var ok bool
		res.Clauses, ok = mergeClauses(res.Clauses, mc, segments, a.threshold)
		if ok {
			accepted++
		}
	}
	for _, me := range reply.Entities {
		res.Entities = mergeEntity(res.Entities, me, segments)
	}

	if err := a.verifyPass(ctx, &res, segments); err != nil {
		return Analysis{}, err
	}
	a.logger.Info("analyze.done",
		"provider", gwRes.Provider,
		"model_clauses_accepted", accepted,
		"clauses", len(res.Clauses),
		"entities", len(res.Entities))

	sortFindings(&res)
	return res, nil
}

func (a *Analyzer) modelPass(ctx context.Context, segments []domain.Segment) (modelReply, gateway.Result, error) {
	req := gateway.Request{
		Task:   TaskName,
		System: BuildAnalysisSystemPrompt(),
		User:   BuildAnalysisUserPrompt(segments),
		Schema: BuildAnalysisJSONSchema(),
	}
	res, err := a.gw.Complete(ctx, req)
	if err != nil {
		return modelReply{}, res, err
	}
	var reply modelReply
	if err := json.Unmarshal(res.JSON, &reply); err != nil {
		return modelReply{}, res, fmt.Errorf("decode analysis reply: %w", err)
	}
	return reply, res, nil
}

// sortFindings orders clauses and entities by document position so output
// is stable regardless of which pass produced each match.
func sortFindings(res *Analysis) {
	sort.SliceStable(res.Clauses, func(i, j int) bool {
		a, b := res.Clauses[i], res.Clauses[j]
		if a.Segments.From != b.Segments.From {
			return a.Segments.From < b.Segments.From
		}
		return a.Type < b.Type
	})
	sort.SliceStable(res.Entities, func(i, j int) bool {
		a, b := res.Entities[i], res.Entities[j]
		if a.Span.Segment != b.Span.Segment {
			return a.Span.Segment < b.Span.Segment
		}
		if a.Span.Offset != b.Span.Offset {
			return a.Span.Offset < b.Span.Offset
		}
		return a.Type < b.Type
	})
}
