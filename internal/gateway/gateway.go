// Package gateway mediates every model call the pipeline makes. Providers
// are tried in configured order; transient failures retry with exponential
// backoff, anything else falls through to the next provider. A response
// that fails schema validation counts as a provider failure and is never
// passed downstream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
	"github.com/lexfield/contract-insight/internal/metrics"
)

// Request is one model task: prompts plus the JSON schema the reply must
// satisfy. Schema may be nil for free-form tasks.
type Request struct {
	Task   string
	System string
	User   string
	Schema map[string]any
	// Temperature overrides the provider's configured default when > 0.
	Temperature float32
}

// Result carries the validated JSON reply and the attempt trail, including
// the failures that preceded success on a later provider.
type Result struct {
	JSON     []byte
	Provider string
	Attempts []domain.ProviderAttempt
}

// Provider is one backend in the fallback chain.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) ([]byte, error)
}

type providerSlot struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
}

// Gateway runs the provider chain.
type Gateway struct {
	slots       []providerSlot
	baseBackoff time.Duration
	logger      *slog.Logger
}

// New assembles the chain from the provider order in cfg. Unknown order
// entries were rejected at config validation.
func New(cfg common.ProvidersConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{baseBackoff: 500 * time.Millisecond, logger: logger}
	for _, name := range cfg.Order {
		switch name {
		case "remote":
			g.slots = append(g.slots, providerSlot{
				provider:   newRemoteProvider(cfg.Remote, logger),
				timeout:    cfg.Remote.Timeout(),
				maxRetries: cfg.Remote.MaxRetries,
			})
		case "local":
			g.slots = append(g.slots, providerSlot{
				provider:   newLocalProvider(cfg.Local, logger),
				timeout:    cfg.Local.Timeout(),
				maxRetries: cfg.Local.MaxRetries,
			})
		}
	}
	return g
}

// NewWithProviders builds a gateway over explicit providers. Tests and the
// CLI use this to bypass config assembly.
func NewWithProviders(providers []Provider, timeout time.Duration, maxRetries int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{baseBackoff: 500 * time.Millisecond, logger: logger}
	for _, p := range providers {
		g.slots = append(g.slots, providerSlot{provider: p, timeout: timeout, maxRetries: maxRetries})
	}
	return g
}

// Complete walks the chain until one provider returns a schema-valid reply.
// The chain order never changes between calls. Once every provider is
// exhausted the caller gets ModelUnavailableError with the full trail.
func (g *Gateway) Complete(ctx context.Context, req Request) (Result, error) {
	if len(g.slots) == 0 {
		return Result{}, &common.ModelUnavailableError{Attempts: []error{errors.New("no providers configured")}}
	}

	var (
		attempts []domain.ProviderAttempt
		failures []error
	)
	for _, slot := range g.slots {
		raw, slotAttempts, err := g.completeOne(ctx, slot, req)
		attempts = append(attempts, slotAttempts...)
		if err == nil {
			g.logger.Info("gateway.complete",
				"task", req.Task,
				"provider", slot.provider.Name(),
				"attempts", len(attempts),
				"bytes", len(raw),
			)
			return Result{JSON: raw, Provider: slot.provider.Name(), Attempts: attempts}, nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", slot.provider.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	g.logger.Error("gateway.exhausted", "task", req.Task, "providers", len(g.slots), "attempts", len(attempts))
	metrics.ProviderExhaustedTotal.WithLabelValues(req.Task).Inc()
	return Result{Attempts: attempts}, &common.ModelUnavailableError{Attempts: failures}
}

// completeOne runs one provider with its retry budget. Only transient
// failures burn retries; schema violations and other permanent errors
// fall through to the next provider immediately.
func (g *Gateway) completeOne(ctx context.Context, slot providerSlot, req Request) ([]byte, []domain.ProviderAttempt, error) {
	var (
		attempts []domain.ProviderAttempt
		lastErr  error
	)
	name := slot.provider.Name()

	for attempt := 0; attempt <= slot.maxRetries; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if slot.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, slot.timeout)
		}
		start := time.Now()
		raw, err := slot.provider.Complete(callCtx, req)
		if cancel != nil {
			cancel()
		}
		metrics.ProviderRequestDuration.WithLabelValues(name, req.Task).Observe(time.Since(start).Seconds())

		if err == nil && req.Schema != nil {
			if vErr := ValidateJSONAgainstSchema(req.Schema, raw); vErr != nil {
				err = fmt.Errorf("schema validation failed: %w", vErr)
				raw = nil
			}
		}
		if err == nil {
			metrics.ProviderAttemptsTotal.WithLabelValues(name, req.Task, "ok").Inc()
			return raw, attempts, nil
		}

		metrics.ProviderAttemptsTotal.WithLabelValues(name, req.Task, "error").Inc()
		lastErr = err
		attempts = append(attempts, domain.ProviderAttempt{
			Provider: name,
			Task:     req.Task,
			Attempt:  attempt + 1,
			Err:      err.Error(),
		})

		if ctx.Err() != nil {
			return nil, attempts, lastErr
		}
		if !isTransient(err) {
			g.logger.Warn("gateway.provider.failed", "task", req.Task, "provider", name, "error", err)
			return nil, attempts, lastErr
		}
		if attempt < slot.maxRetries {
			wait := g.baseBackoff * (1 << uint(attempt))
			g.logger.Warn("gateway.provider.retry",
				"task", req.Task,
				"provider", name,
				"attempt", attempt+1,
				"max_retries", slot.maxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, attempts, lastErr
			case <-time.After(wait):
			}
		}
	}
	return nil, attempts, lastErr
}

// isTransient reports whether another attempt against the same provider
// could plausibly succeed: network faults, deadline hits, rate limiting,
// and server-side 5xx replies.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	var he *httpStatusError
	if errors.As(err, &he) {
		return he.status == 429 || he.status >= 500
	}
	return false
}
