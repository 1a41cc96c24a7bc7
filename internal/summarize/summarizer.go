// Package summarize produces the plain-language narrative for a report.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/gateway"
)

// TaskName identifies summary calls in provider attempt records.
const TaskName = "summarize"

const (
	// DefaultMaxChars bounds the summary length when config leaves it unset.
	DefaultMaxChars = 1200
	// DefaultTemperature keeps summary wording near-deterministic.
	DefaultTemperature float32 = 0.1

	// clauseExcerptCap bounds each clause excerpt in the prompt.
	clauseExcerptCap = 200
)

// Completer is the slice of the model gateway the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

type Summarizer struct {
	gw          Completer
	maxChars    int
	temperature float32
	logger      *slog.Logger
}

func New(gw Completer, cfg common.SummaryConfig, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Summarizer{gw: gw, maxChars: maxChars, temperature: temperature, logger: logger}
}

// Summarize asks the gateway for a narrative summary of the contract and
// bounds it to the configured length, cutting at a sentence boundary when
// the model runs long. Provider exhaustion surfaces as the gateway's
// ModelUnavailableError; the caller decides whether that degrades the run.
func (s *Summarizer) Summarize(ctx context.Context, segments []domain.Segment, clauses []domain.ClauseMatch) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no segments to summarize", common.ErrInvalidInput)
	}

	res, err := s.gw.Complete(ctx, gateway.Request{
		Task:        TaskName,
		System:      buildSystemPrompt(s.maxChars),
		User:        buildUserPrompt(segments, clauses),
		Schema:      buildSummaryJSONSchema(),
		Temperature: s.temperature,
	})
	if err != nil {
		return "", err
	}

	var reply struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(res.JSON, &reply); err != nil {
		return "", fmt.Errorf("decode summary reply: %w", err)
	}

	summary := truncateAtSentence(strings.TrimSpace(reply.Summary), s.maxChars)
	s.logger.Info("summarize.done",
		"provider", res.Provider,
		"chars", len(summary))
	return summary, nil
}

func buildSystemPrompt(maxChars int) string {
	parts := []string{
		"You are a contract summarizer. Return ONLY JSON that matches the provided JSON Schema.",
		"Write a plain-language summary for a non-lawyer: who the parties are, what the contract is for, " +
			"the key commercial terms, and anything unusual or one-sided.",
		"Keep the summary under " + strconv.Itoa(maxChars) + " characters.",
		"State only what the document says. Do not give legal advice or recommendations.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(segments []domain.Segment, clauses []domain.ClauseMatch) string {
	var b strings.Builder
	if len(clauses) > 0 {
		b.WriteString("Identified clauses:\n")
		for _, c := range clauses {
			excerpt := strings.TrimSpace(c.Text)
			if len(excerpt) > clauseExcerptCap {
				excerpt = excerpt[:clauseExcerptCap] + "…"
			}
			b.WriteString("- ")
			b.WriteString(string(c.Type))
			b.WriteString(": ")
			b.WriteString(excerpt)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Contract text:\n")
	b.WriteString(domain.JoinText(segments))
	return b.String()
}

func buildSummaryJSONSchema() map[string]any {
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required": []any{"summary"},
	}
}

// truncateAtSentence cuts text to at most max bytes, preferring the last
// sentence end past the halfway mark, then the last word break.
func truncateAtSentence(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexAny(cut, ".!?"); i >= max/2 {
		return strings.TrimSpace(cut[:i+1])
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return strings.TrimSpace(cut[:i])
	}
	return cut
}
