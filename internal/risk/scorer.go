// Package risk scores a contract by combining deterministic rule signals
// with the model's qualitative judgment.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/gateway"
)

// TaskName identifies risk-scoring calls in provider attempt records.
const TaskName = "score"

// CodeModelUnavailable marks the rationale entry recording that the model
// subscore was dropped and rule findings carry full weight.
const CodeModelUnavailable = "MODEL_UNAVAILABLE"

// Default composition weights, applied when config leaves them unset.
const (
	DefaultRuleWeight  = 0.6
	DefaultModelWeight = 0.4
)

const riskDetailCap = 240

// Completer is the slice of the model gateway the scorer needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

type Scorer struct {
	gw          Completer
	ruleWeight  float64
	modelWeight float64
	logger      *slog.Logger
}

func New(gw Completer, cfg common.RiskConfig, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	rw, mw := cfg.RuleWeight, cfg.ModelWeight
	if rw <= 0 && mw <= 0 {
		rw, mw = DefaultRuleWeight, DefaultModelWeight
	}
	return &Scorer{gw: gw, ruleWeight: rw, modelWeight: mw, logger: logger}
}

type modelResult struct {
	Score int         `json:"risk_score"`
	Risks []modelRisk `json:"risks"`
}

type modelRisk struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Score combines the rule subscore with the model subscore. When every
// provider is down the rule findings carry full weight and the rationale
// records the degradation; that path returns a valid assessment, not an
// error.
func (s *Scorer) Score(ctx context.Context, segments []domain.Segment, clauses []domain.ClauseMatch, entities []domain.EntityMatch) (domain.RiskAssessment, error) {
	if len(segments) == 0 {
		return domain.RiskAssessment{}, fmt.Errorf("%w: no segments to score", common.ErrInvalidInput)
	}

	findings := ruleFindings(segments, clauses)

	model, err := s.modelPass(ctx, segments, clauses, entities)
	if err != nil {
		var mu *common.ModelUnavailableError
		if !errors.As(err, &mu) {
			return domain.RiskAssessment{}, err
		}
		s.logger.Warn("risk.model.unavailable", "attempts", len(mu.Attempts))
		assessment := s.compose(findings, modelResult{}, true)
		s.logger.Info("risk.done", "score", assessment.Score, "severity", assessment.Severity, "degraded", true)
		return assessment, nil
	}

	assessment := s.compose(findings, model, false)
	s.logger.Info("risk.done", "score", assessment.Score, "severity", assessment.Severity, "degraded", false)
	return assessment, nil
}

func (s *Scorer) modelPass(ctx context.Context, segments []domain.Segment, clauses []domain.ClauseMatch, entities []domain.EntityMatch) (modelResult, error) {
	res, err := s.gw.Complete(ctx, gateway.Request{
		Task:   TaskName,
		System: buildSystemPrompt(),
		User:   buildUserPrompt(segments, clauses, entities),
		Schema: buildRiskJSONSchema(),
	})
	if err != nil {
		return modelResult{}, err
	}
	var model modelResult
	if err := json.Unmarshal(res.JSON, &model); err != nil {
		return modelResult{}, fmt.Errorf("decode risk reply: %w", err)
	}
	if model.Score < 0 {
		model.Score = 0
	}
	if model.Score > 100 {
		model.Score = 100
	}
	return model, nil
}

// compose builds the assessment. Rationale weights are each factor's
// weighted contribution, so they sum to the score within rounding.
func (s *Scorer) compose(findings []ruleFinding, model modelResult, degraded bool) domain.RiskAssessment {
	rw, mw := s.ruleWeight, s.modelWeight
	if degraded {
		rw, mw = 1.0, 0
	}

	raw := 0
	for _, f := range findings {
		raw += f.points
	}
	ruleScore := raw
	scale := 1.0
	if raw > 100 {
		ruleScore = 100
		scale = 100.0 / float64(raw)
	}

	var rationale []domain.RiskFactor
	for _, f := range findings {
		rationale = append(rationale, domain.RiskFactor{
			Source: domain.SourceRule,
			Code:   f.code,
			Detail: f.detail,
			Weight: float64(f.points) * scale * rw,
		})
	}
	if !degraded && model.Score > 0 {
		rationale = append(rationale, domain.RiskFactor{
			Source: domain.SourceModel,
			Code:   "MODEL_ASSESSMENT",
			Detail: modelDetail(model),
			Weight: mw * float64(model.Score),
		})
	}
	if degraded {
		rationale = append(rationale, domain.RiskFactor{
			Source: domain.SourceModel,
			Code:   CodeModelUnavailable,
			Detail: "model subscore unavailable; rule findings carry full weight",
			Weight: 0,
		})
	}

	total := rw*float64(ruleScore) + mw*float64(model.Score)
	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return domain.RiskAssessment{
		Score:     score,
		Severity:  domain.SeverityForScore(score),
		Rationale: rationale,
	}
}

func modelDetail(model modelResult) string {
	if len(model.Risks) == 0 {
		return fmt.Sprintf("model risk subscore %d", model.Score)
	}
	var parts []string
	for _, r := range model.Risks {
		parts = append(parts, r.Description)
	}
	detail := strings.Join(parts, "; ")
	if len(detail) > riskDetailCap {
		detail = detail[:riskDetailCap] + "…"
	}
	return detail
}

func buildSystemPrompt() string {
	parts := []string{
		"You are a contract risk analyst. Return ONLY JSON that matches the provided JSON Schema.",
		"Judge the contract from the perspective of the party with less leverage: " +
			"one-sided rights, missing protections, unusual or onerous terms, unclear obligations.",
		"'risk_score' is an integer from 0 (benign, balanced) to 100 (severe, heavily one-sided).",
		"List each concrete risk you see in 'risks' with a short description and a severity of low, medium, or high.",
		"State only what the document supports. Do not give legal advice.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(segments []domain.Segment, clauses []domain.ClauseMatch, entities []domain.EntityMatch) string {
	var b strings.Builder
	if len(clauses) > 0 {
		b.WriteString("Identified clause types: ")
		for i, c := range clauses {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(string(c.Type))
		}
		b.WriteString("\n")
	}
	if len(entities) > 0 {
		counts := map[string]int{}
		for _, e := range entities {
			counts[string(e.Type)]++
		}
		b.WriteString("Entity counts: ")
		first := true
		for _, t := range []string{"PERSON", "ORG", "DATE", "MONEY", "EMAIL", "PHONE", "ID"} {
			if counts[t] == 0 {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%d", t, counts[t])
			first = false
		}
		b.WriteString("\n")
	}
	b.WriteString("\nContract text:\n")
	b.WriteString(domain.JoinText(segments))
	return b.String()
}

func buildRiskJSONSchema() map[string]any {
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"risk_score": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 100,
			},
			"risks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"description": map[string]any{
							"type":      "string",
							"minLength": 1,
						},
						"severity": map[string]any{
							"type": "string",
							"enum": []any{"low", "medium", "high"},
						},
					},
					"required": []any{"description", "severity"},
				},
			},
		},
		"required": []any{"risk_score"},
	}
}
