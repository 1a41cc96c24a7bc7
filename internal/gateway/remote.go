package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexfield/contract-insight/internal/common"
)

// remoteProvider talks to any OpenAI-compatible chat completions host.
// The default configuration points it at Groq.
type remoteProvider struct {
	client *openai.Client
	cfg    common.ProviderConfig
	logger *slog.Logger
}

func newRemoteProvider(cfg common.ProviderConfig, logger *slog.Logger) *remoteProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &remoteProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (p *remoteProvider) Name() string { return "remote" }

func (p *remoteProvider) Complete(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	user := truncatePrompt(req.User, p.cfg.MaxPromptChars, p.logger)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	if req.Schema != nil {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "JSON Schema:\n" + mustJSON(req.Schema),
		})
	}

	temperature := p.cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Temperature: temperature,
		Messages:    messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		p.logger.Error("gateway.remote.error",
			"task", req.Task,
			"model", p.cfg.Model,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	p.logger.Debug("gateway.remote.ok",
		"task", req.Task,
		"model", p.cfg.Model,
		"bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(content), nil
}

// truncatePrompt caps the user prompt at the provider's context budget.
func truncatePrompt(text string, maxChars int, logger *slog.Logger) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	if logger != nil {
		logger.Warn("gateway.prompt.truncated", "from", len(text), "to", maxChars)
	}
	return text[:maxChars]
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
