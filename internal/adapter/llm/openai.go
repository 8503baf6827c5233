package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"codeflow/config"
	"codeflow/internal/port"
	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyResponse = errors.New("model returned no choices")

// Client talks to an OpenAI compatible chat completion endpoint.
type Client struct {
	client   *openai.Client
	provider string
	model    string
}

type Options struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	provider := opts.Provider
	if provider == "" {
		provider = "OpenAI"
	}

	return &Client{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
		model:    opts.Model,
	}
}

// New builds the chat client described by cfg, wrapped in retries when
// cfg.MaxRetries is positive. The API key is read from cfg.APIKeyEnv.
func New(cfg config.LLMConfig) (port.LLM, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
		}
	}

	var model port.LLM = NewClient(Options{
		Provider: cfg.Provider,
		BaseURL:  cfg.BaseURL,
		APIKey:   apiKey,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout.Std(),
	})

	if cfg.MaxRetries > 0 {
		model = NewRetryLLM(model, RetryConfig{
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay.Std(),
			MaxDelay:   30 * time.Second,
		})
	}
	return model, nil
}

func (c *Client) Chat(ctx context.Context, req port.ChatRequest) (port.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return port.ChatResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return port.ChatResponse{}, ErrEmptyResponse
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return port.ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *Client) ModelName() string {
	return c.model
}

func (c *Client) ProviderName() string {
	return c.provider
}
