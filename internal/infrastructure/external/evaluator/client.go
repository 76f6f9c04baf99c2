// Package evaluator implements the HTTP client for the external answer
// evaluation service. Only the numeric score drives the task lifecycle;
// feedback text passes through untouched.
package evaluator

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

// ClientConfig contains configuration for the evaluator client.
type ClientConfig struct {
	// BaseURL is the evaluation service base URL.
	BaseURL string

	// APIKey authenticates requests (sent as a bearer token).
	APIKey string

	// Timeout is the HTTP request timeout. Grading is slower than
	// generation, so the default is generous.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements task.Evaluator against the evaluation service.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new evaluator client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("client", "evaluator")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		retrier: retry.EvaluatorRetrier(),
		breaker: circuitbreaker.EvaluatorBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
	}
}

// evaluateRequest is the wire shape of an evaluation request.
type evaluateRequest struct {
	TaskText string `json:"task_text"`
	Solution string `json:"solution,omitempty"`
	Answer   string `json:"answer"`
}

// evaluateResponse is the wire shape of an evaluation response.
type evaluateResponse struct {
	Score    *int   `json:"score"`
	Feedback string `json:"feedback"`
}

// Evaluate grades the answer against the task and reference solution.
// Unreachable service maps to ErrEvaluatorUnavailable; a response without a
// usable 0-100 score maps to ErrEvaluatorBadResponse. The caller decides
// whether to degrade to an ungraded completion.
func (c *Client) Evaluate(ctx context.Context, taskText, solution, answer string) (task.Evaluation, error) {
	payload := evaluateRequest{
		TaskText: taskText,
		Solution: solution,
		Answer:   answer,
	}

	var out evaluateResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, "/v1/answers/evaluate", payload, &out)
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
			return task.Evaluation{}, shared.ErrEvaluatorUnavailable
		}
		return task.Evaluation{}, err
	}

	if out.Score == nil || *out.Score < 0 || *out.Score > 100 {
		return task.Evaluation{}, shared.ErrEvaluatorBadResponse
	}

	return task.Evaluation{
		Score:    *out.Score,
		Feedback: out.Feedback,
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
		return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrEvaluatorUnavailable, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(fmt.Errorf("%w: status %d", shared.ErrEvaluatorUnavailable, resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("evaluator rejected request with status %d: %s", resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrEvaluatorBadResponse, err))
	}
	return nil
}
