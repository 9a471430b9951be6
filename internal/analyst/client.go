// Package analyst calls the external analyst model endpoint.
//
// The classifier sends it market pairs, the scenario engine sends it the
// user's shock query and the retrieval-augmented context. The endpoint is a
// chat-completions style HTTP API: system prompt + user content in, text out.
// Callers parse the first well-formed JSON object from the text via
// ExtractJSON.
//
// Failures are surfaced at the unit-of-work boundary (per-pair skip, or
// per-scenario failed status); there is no retry by default. A circuit
// breaker turns a dying endpoint into fast failures instead of pile-ups, and
// a token bucket paces the classifier's bounded parallelism under model rate
// limits.
package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"vantage-engine/internal/config"
)

var (
	metricCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_analyst_calls_total",
		Help: "Analyst model calls attempted.",
	})
	metricFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_analyst_failures_total",
		Help: "Analyst model calls that failed (network, non-2xx, empty).",
	})
)

// Client is the analyst model HTTP client.
type Client struct {
	http    *resty.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	pacer   *TokenBucket
	logger  *slog.Logger
}

// chat-completions wire format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates an analyst client with circuit breaking and pacing.
func NewClient(cfg config.AnalystConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.ApiKey)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "analyst",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("analyst breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		http:    httpClient,
		model:   cfg.Model,
		breaker: breaker,
		pacer:   NewTokenBucket(10, 2), // burst 10, steady 2 calls/sec
		logger:  logger.With("component", "analyst"),
	}
}

// Complete sends one system+user exchange and returns the model's text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", err
	}

	metricCalls.Inc()
	out, err := c.breaker.Execute(func() (any, error) {
		return c.complete(ctx, systemPrompt, userContent)
	})
	if err != nil {
		metricFailures.Inc()
		return "", err
	}
	return out.(string), nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.2,
	}

	var result chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("analyst call: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("analyst call: status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		return "", fmt.Errorf("analyst call: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("analyst call: empty response")
	}
	return result.Choices[0].Message.Content, nil
}
