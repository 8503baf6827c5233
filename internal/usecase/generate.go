package usecase

import (
	"context"
	"log/slog"
	"time"

	"codeflow/internal/domain"
	"codeflow/internal/observability"
	"codeflow/internal/port"
	"go.opentelemetry.io/otel/attribute"
)

// GeneratorOptions holds the fixed decoding parameters for every call.
type GeneratorOptions struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	JSONMode     bool
}

// Generator asks the LLM to answer the query over the retrieved context.
// It never fails: provider errors come back inside the Generation.
type Generator struct {
	llm    port.LLM
	opts   GeneratorOptions
	logger *slog.Logger
}

func NewGenerator(llm port.LLM, opts GeneratorOptions, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, opts: opts, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, chunks []domain.ScoredChunk, query string) domain.Generation {
	ctx, span := observability.StartLLMSpan(ctx, g.llm.ProviderName(), g.llm.ModelName())

	g.logger.Info("calling chat model", "provider", g.llm.ProviderName(), "model", g.llm.ModelName(), "chunks", len(chunks))
	start := time.Now()

	resp, err := g.llm.Chat(ctx, port.ChatRequest{
		SystemPrompt: g.opts.SystemPrompt,
		UserPrompt:   BuildUserPrompt(BuildContext(chunks), query),
		Temperature:  g.opts.Temperature,
		MaxTokens:    g.opts.MaxTokens,
		JSONMode:     g.opts.JSONMode,
	})
	if err != nil {
		perr := &domain.ProviderError{Provider: g.llm.ProviderName(), Err: err}
		g.logger.Error("chat model request failed", "error", err, "duration", time.Since(start))
		observability.EndSpan(span, perr)
		return domain.Generation{
			Text:  perr.SoftText(),
			Model: g.llm.ModelName(),
			Err:   perr,
		}
	}

	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.InputTokens),
		attribute.Int("llm.output_tokens", resp.OutputTokens),
	)
	observability.EndSpan(span, nil)
	g.logger.Debug("chat model answered", "duration", time.Since(start), "output_tokens", resp.OutputTokens)

	return domain.Generation{Text: resp.Content, Model: resp.Model}
}
