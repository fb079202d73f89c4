package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient calls an OpenAI-compatible chat completions endpoint for
// content rewriting. It implements Rewriter.
type LLMClient struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// LLMConfig configures the rewrite client.
type LLMConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewLLMClient creates a rewrite client. The request timeout is short
// relative to the chat API default because a rewrite only ever handles
// a single post's worth of text and must never stall a publish path.
func NewLLMClient(cfg LLMConfig, logger *logrus.Logger) *LLMClient {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "llm-rewrite",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &LLMClient{
		apiURL:     apiURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("llm-client"),
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// SetAPIURL sets the API URL for testing purposes
func (c *LLMClient) SetAPIURL(apiURL string) {
	c.apiURL = strings.TrimRight(apiURL, "/")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Rewrite sends the prompt and returns the model's reply text.
func (c *LLMClient) Rewrite(ctx context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.rewrite")
	defer span.End()

	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.rewriteInternal(ctx, prompt)
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("rewrite failed: %w", err)
	}
	return result.(string), nil
}

func (c *LLMClient) rewriteInternal(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
