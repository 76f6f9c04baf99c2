// Package generator implements the HTTP client for the external task
// generation service. The engine treats generated content as opaque; this
// client only moves it and guards the call with retry and a circuit breaker.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/learnquest/progress-engine/internal/domain/shared"
	"github.com/learnquest/progress-engine/internal/domain/task"
	"github.com/learnquest/progress-engine/pkg/circuitbreaker"
	"github.com/learnquest/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the generator client.
type ClientConfig struct {
	// BaseURL is the generator service base URL.
	BaseURL string

	// APIKey authenticates requests (sent as a bearer token).
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements task.Generator against the generation service.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new generator client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("client", "generator")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		retrier: retry.GeneratorRetrier(),
		breaker: circuitbreaker.GeneratorBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
	}
}

// generateRequest is the wire shape of a generation request.
type generateRequest struct {
	Subject        string `json:"subject"`
	Topic          string `json:"topic,omitempty"`
	Difficulty     string `json:"difficulty"`
	LearnerContext string `json:"learner_context,omitempty"`
}

// generateResponse is the wire shape of a generation response.
type generateResponse struct {
	Text     string `json:"text"`
	Solution string `json:"solution"`
}

// Generate requests a task from the service. Unreachable or misbehaving
// service maps to ErrGeneratorUnavailable / ErrGeneratorTimeout; the caller
// is expected to fall back to task.FallbackTask.
func (c *Client) Generate(ctx context.Context, req task.GenerateRequest) (task.GeneratedTask, error) {
	payload := generateRequest{
		Subject:        req.Subject,
		Topic:          req.Topic,
		Difficulty:     string(req.Difficulty),
		LearnerContext: req.LearnerContext,
	}

	var out generateResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, "/v1/tasks/generate", payload, &out)
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return task.GeneratedTask{}, shared.ErrGeneratorUnavailable
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return task.GeneratedTask{}, shared.ErrGeneratorTimeout
		}
		return task.GeneratedTask{}, err
	}

	if out.Text == "" {
		return task.GeneratedTask{}, shared.ErrGeneratorUnavailable
	}

	return task.GeneratedTask{
		Text:     out.Text,
		Solution: out.Solution,
	}, nil
}

// post executes one JSON POST against the service.
func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrGeneratorUnavailable, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(fmt.Errorf("%w: status %d", shared.ErrGeneratorUnavailable, resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("generator rejected request with status %d: %s", resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return retry.Permanent(fmt.Errorf("parse response: %w", err))
	}
	return nil
}
