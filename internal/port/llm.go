package port

import "context"

// LLM is a chat completion model.
type LLM interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// ModelName returns the name of the model.
	ModelName() string

	// ProviderName returns a human readable provider name.
	ProviderName() string
}

type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	JSONMode     bool
}

type ChatResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}
