package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"codeflow/internal/port"
	openai "github.com/sashabaranov/go-openai"
)

// RetryConfig configures retry behavior for chat calls.
type RetryConfig struct {
	MaxRetries int           // 0 = no retries
	RetryDelay time.Duration // initial delay, doubled per attempt
	MaxDelay   time.Duration
}

// RetryLLM retries transient failures of the wrapped model with
// exponential backoff.
type RetryLLM struct {
	inner  port.LLM
	config RetryConfig
}

func NewRetryLLM(inner port.LLM, config RetryConfig) *RetryLLM {
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	return &RetryLLM{inner: inner, config: config}
}

func (r *RetryLLM) Chat(ctx context.Context, req port.ChatRequest) (port.ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return port.ChatResponse{}, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return port.ChatResponse{}, ctx.Err()
		}
		if !isRetryable(err) {
			return port.ChatResponse{}, err
		}
	}

	return port.ChatResponse{}, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

func (r *RetryLLM) ModelName() string {
	return r.inner.ModelName()
}

func (r *RetryLLM) ProviderName() string {
	return r.inner.ProviderName()
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryLLM) backoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	return delay
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
