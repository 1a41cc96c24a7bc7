package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/gateway"
)

const (
	verdictConfirm = "confirm"
	verdictAdjust  = "adjust"
	verdictReject  = "reject"
)

// clauseVerdict mirrors BuildVerifyJSONSchema.
type clauseVerdict struct {
	Verdict     string  `json:"verdict"`
	SegmentFrom int     `json:"segment_from"`
	SegmentTo   int     `json:"segment_to"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}

// verifyPass asks the model for a verdict on every rule-sourced clause, one
// call per candidate with at most a.concurrency in flight. Verdicts apply in
// candidate order. A failed call keeps its candidate, and the first provider
// exhaustion cancels the calls still waiting; only a dead parent context
// fails the pass.
func (a *Analyzer) verifyPass(ctx context.Context, res *Analysis, segments []domain.Segment) error {
	var idx []int
	for i, c := range res.Clauses {
		if c.Source == domain.SourceRule {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}

	type outcome struct {
		verdict  clauseVerdict
		attempts []domain.ProviderAttempt
		err      error
	}
	outcomes := make([]outcome, len(idx))

	vctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup
	for n, i := range idx {
		wg.Add(1)
		go func(n, i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if vctx.Err() != nil {
				outcomes[n].err = vctx.Err()
				return
			}
			gwRes, err := a.gw.Complete(vctx, gateway.Request{
				Task:   VerifyTaskName,
				System: BuildVerifySystemPrompt(),
				User:   BuildVerifyUserPrompt(res.Clauses[i], segments),
				Schema: BuildVerifyJSONSchema(),
			})
			outcomes[n].attempts = gwRes.Attempts
			if err != nil {
				outcomes[n].err = err
				var mu *common.ModelUnavailableError
				if errors.As(err, &mu) {
					cancel()
				}
				return
			}
			if err := json.Unmarshal(gwRes.JSON, &outcomes[n].verdict); err != nil {
				outcomes[n].err = fmt.Errorf("decode clause verdict: %w", err)
			}
		}(n, i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("verify clauses: %w", err)
	}

	kept := make([]domain.ClauseMatch, 0, len(res.Clauses))
	next := 0
	rejected, adjusted := 0, 0
	unavailable := false
	for i, c := range res.Clauses {
		if next >= len(idx) || idx[next] != i {
			kept = append(kept, c)
			continue
		}
		o := outcomes[next]
		next++
		res.Attempts = append(res.Attempts, o.attempts...)
		if o.err != nil {
			var mu *common.ModelUnavailableError
			if errors.As(o.err, &mu) {
				unavailable = true
			}
			kept = append(kept, c)
			continue
		}
		m, keep := applyVerdict(c, o.verdict, segments, a.threshold)
		if !keep {
			rejected++
			continue
		}
		if m.Segments != c.Segments {
			adjusted++
		}
		kept = append(kept, m)
	}
	res.Clauses = kept

	if unavailable {
		a.logger.Warn("analyze.verify.unavailable", "candidates", len(idx))
	}
	a.logger.Info("analyze.verify.done",
		"candidates", len(idx),
		"rejected", rejected,
		"adjusted", adjusted)
	return nil
}

// applyVerdict reconciles one verdict with its candidate. Reject and adjust
// take effect only above the override threshold; anything else, including a
// low-confidence verdict, keeps the rule match untouched.
func applyVerdict(c domain.ClauseMatch, v clauseVerdict, segments []domain.Segment, threshold float64) (domain.ClauseMatch, bool) {
	conf := clamp01(v.Confidence)
	switch v.Verdict {
	case verdictReject:
		if conf > threshold {
			return domain.ClauseMatch{}, false
		}
	case verdictAdjust:
		if conf <= threshold {
			break
		}
		r, ok := clampRange(v.SegmentFrom, v.SegmentTo, len(segments))
		if !ok {
			break
		}
		c.Segments = r
		c.Text = clauseText(v.Text, segments, r)
		c.Confidence = clampToSegments(conf, segments, r)
		c.Source = domain.SourceModel
	}
	return c, true
}
