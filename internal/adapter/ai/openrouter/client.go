// Package openrouter implements domain.ChatClient against an OpenAI-compatible
// chat-completions endpoint (OpenRouter by default).
//
// This is the only component in the engine that performs network I/O: it owns
// the per-call timeout, the exponential-backoff retry policy, and the
// availability short-circuit. Everything above it converts failures into
// result objects.
package openrouter

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

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brokerpoint/polizza-analyzer/internal/adapter/observability"
	"github.com/brokerpoint/polizza-analyzer/internal/config"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

const providerLabel = "openrouter"

// Client calls the configured chat-completions endpoint with retries.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a provider client whose HTTP timeout bounds each attempt.
// Outbound calls are traced end to end via the otelhttp transport.
func New(cfg config.Config) *Client {
	return &Client{cfg: cfg, hc: &http.Client{
		Timeout:   cfg.AITimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

// Chat sends a system+user completion request and returns the text of the
// first choice, trimmed of surrounding whitespace.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.complete(ctx, "chat", systemPrompt, userPrompt, maxTokens, nil)
}

// ChatStructured sends a completion request with a provider-enforced JSON
// schema (response_format binding) and returns the raw JSON payload.
func (c *Client) ChatStructured(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, schemaName string, schema map[string]any) (string, error) {
	responseFormat := map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   schemaName,
			"strict": true,
			"schema": schema,
		},
	}
	return c.complete(ctx, "chat_structured", systemPrompt, userPrompt, maxTokens, responseFormat)
}

func (c *Client) complete(ctx context.Context, op, systemPrompt, userPrompt string, maxTokens int, responseFormat map[string]any) (string, error) {
	if !c.cfg.AIConfigured() {
		// Short-circuit before any network call so callers can tell a
		// missing provider apart from a failed extraction.
		return "", fmt.Errorf("%w: AI_API_KEY missing", domain.ErrAIUnavailable)
	}

	body := map[string]any{
		"model":       c.cfg.AIModel,
		"temperature": c.cfg.AITemperature,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	if responseFormat != nil {
		body["response_format"] = responseFormat
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	attempt := 0
	call := func() error {
		attempt++
		if attempt > 1 {
			observability.AIRetriesTotal.WithLabelValues(providerLabel, op).Inc()
		}
		start := time.Now()
		// Recreate the request each attempt to avoid reusing a consumed body
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AIBaseURL+"/chat/completions", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues(providerLabel, op).Inc()
		observability.AIRequestDuration.WithLabelValues(providerLabel, op).Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Warn("ai provider transport error",
				slog.String("provider", providerLabel),
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := string(bodyBytes)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Warn("ai provider non-2xx",
				slog.String("provider", providerLabel),
				slog.String("op", op),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt),
				slog.String("body", snippet))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Warn("ai provider decode error",
				slog.String("provider", providerLabel),
				slog.String("op", op),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(call, c.retryPolicy(ctx)); err != nil {
		slog.Error("ai provider failed after retries",
			slog.String("provider", providerLabel),
			slog.String("op", op),
			slog.Int("attempts", attempt),
			slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrProviderUnavailable)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// retryPolicy yields sleeps of baseDelay * 2^attemptIndex with no jitter,
// bounded to the configured attempt count.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.AIRetryBaseDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	attempts := c.cfg.AIRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)
}
