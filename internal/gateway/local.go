package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lexfield/contract-insight/internal/common"
)

// localProvider talks to an Ollama host. Replies are requested in JSON
// mode, but smaller local models still wrap JSON in prose often enough
// that the reply goes through brace extraction before validation.
type localProvider struct {
	http   *http.Client
	cfg    common.ProviderConfig
	logger *slog.Logger
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.status, e.body)
}

func newLocalProvider(cfg common.ProviderConfig, logger *slog.Logger) *localProvider {
	return &localProvider{
		http:   &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
}

func (p *localProvider) Name() string { return "local" }

func (p *localProvider) Complete(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	user := truncatePrompt(req.User, p.cfg.MaxPromptChars, p.logger)

	system := req.System
	if req.Schema != nil {
		system += "\n\nJSON Schema:\n" + mustJSON(req.Schema)
	}

	temperature := p.cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	body := map[string]any{
		"model": p.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": temperature,
		},
	}

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		p.logger.Error("gateway.local.send_error",
			"task", req.Task,
			"model", p.cfg.Model,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, &httpStatusError{status: resp.StatusCode, body: truncateBody(raw)}
	}

	var chat struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	content, err := ExtractJSONObject(chat.Message.Content)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("gateway.local.ok",
		"task", req.Task,
		"model", p.cfg.Model,
		"bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
