// Package llm is the HTTP client for the inference capability. The planner,
// reflection engine, and section generator all speak to the same service
// endpoint; callers own their prompts and output contracts, this package owns
// transport, role routing, and fenced-JSON extraction.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/metrics"
	"github.com/scanforge/diligence/internal/scanerrors"
)

// Config locates the inference service.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// ConfigFromEnv reads LLM_SERVICE_URL with the compose-network default.
func ConfigFromEnv() Config {
	base := os.Getenv("LLM_SERVICE_URL")
	if base == "" {
		base = "http://llm-service:8000"
	}
	return Config{BaseURL: base, Timeout: 60 * time.Second}
}

// Request is one inference call. Role selects the service-side prompt
// profile; ForceJSON asks providers that support it for structured output.
type Request struct {
	Prompt    string
	Role      string
	ForceJSON bool
}

// Response carries the model text plus usage accounting.
type Response struct {
	Text       string
	TokensUsed int
	ModelUsed  string
	Provider   string
}

// Client calls the inference service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Generate performs one inference call. Transport and 5xx failures are
// transient provider errors; a malformed service response is permanent.
func (c *Client) Generate(ctx context.Context, in Request) (Response, error) {
	ctxMap := map[string]any{"role": in.Role}
	if in.ForceJSON {
		ctxMap["response_format"] = map[string]any{"type": "json_object"}
	}
	body, err := json.Marshal(map[string]any{
		"query":   in.Prompt,
		"context": ctxMap,
	})
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.cfg.BaseURL + "/agent/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, scanerrors.NewProviderError("llm", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		transient := resp.StatusCode >= 500
		return Response{}, scanerrors.NewProviderError("llm", transient,
			fmt.Errorf("inference service returned status %d", resp.StatusCode))
	}

	var out struct {
		Response   string `json:"response"`
		TokensUsed int    `json:"tokens_used"`
		ModelUsed  string `json:"model_used"`
		Provider   string `json:"provider"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, scanerrors.NewProviderError("llm", false,
			fmt.Errorf("failed to decode response: %w", err))
	}

	metrics.LLMTokensUsed.WithLabelValues(in.Role).Add(float64(out.TokensUsed))
	c.logger.Debug("Inference call complete",
		zap.String("role", in.Role),
		zap.Int("tokens_used", out.TokensUsed),
		zap.String("model", out.ModelUsed),
		zap.Duration("duration", time.Since(start)),
	)
	return Response{
		Text:       out.Response,
		TokensUsed: out.TokensUsed,
		ModelUsed:  out.ModelUsed,
		Provider:   out.Provider,
	}, nil
}

// StripFences removes a surrounding markdown code fence, if present. Models
// wrap JSON in ```json fences even when told not to.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	} else {
		return text
	}
	if idx := strings.LastIndex(text, "```"); idx != -1 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// DecodeJSON strips fences and unmarshals the model output into v. As a last
// resort it retries on the outermost object braces, for models that wrap JSON
// in prose.
func DecodeJSON(text string, v any) error {
	cleaned := StripFences(text)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}
