package cli

import (
	"fmt"

	"codeflow/config"
	"codeflow/internal/adapter/cache"
	"codeflow/internal/adapter/chunker"
	"codeflow/internal/adapter/embedding"
	"codeflow/internal/adapter/fs"
	"codeflow/internal/adapter/llm"
	"codeflow/internal/adapter/retriever"
	"codeflow/internal/adapter/store"
	"codeflow/internal/port"
	"codeflow/internal/usecase"
)

// pipeline holds the wired analysis use case and the resources it owns.
type pipeline struct {
	analyzer *usecase.AnalyzeUseCase
	history  *store.HistoryStore
	llm      port.LLM
}

func (p *pipeline) Close() error {
	if p.history != nil {
		return p.history.Close()
	}
	return nil
}

// buildPipeline wires the analysis use case from cfg. dir anchors the history
// database; repository names resolve against the configured base path.
func buildPipeline(cfg *config.Config, dir string) (*pipeline, error) {
	collector := fs.NewCollector(fs.Options{
		IgnoreDirs:      cfg.Repository.IgnoreDirs,
		Extensions:      cfg.Repository.Extensions,
		ArtifactMarkers: cfg.Repository.ArtifactMarkers,
		Excludes:        cfg.Repository.Excludes,
		ComponentMatch:  cfg.Repository.IgnoreMatch == config.IgnoreMatchComponent,
	}, logger)

	splitter, err := chunker.NewRecursiveChunker(cfg.Chunk.Size, cfg.Chunk.Overlap, cfg.Chunk.Separators)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	var queryEmbedder port.Embedder = embedder
	if cfg.Embedding.QueryCacheSize > 0 {
		vc := cache.NewVectorCache(cfg.Embedding.QueryCacheSize, cfg.Embedding.QueryCacheTTL.Std())
		queryEmbedder = cache.NewCachedEmbedder(embedder, vc)
	}

	chat, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	generator := usecase.NewGenerator(chat, usecase.GeneratorOptions{
		SystemPrompt: cfg.Analysis.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		JSONMode:     cfg.LLM.JSONMode,
	}, logger)

	p := &pipeline{llm: chat}
	var history port.HistoryStore
	if cfg.History.Enabled {
		p.history, err = store.NewHistoryStore(cfg.HistoryDBPath(dir), cfg.History.MaxPerRepo)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		history = p.history
	}

	p.analyzer = usecase.NewAnalyzeUseCase(
		collector,
		splitter,
		embedder,
		queryEmbedder,
		generator,
		usecase.NewValidator(nil),
		history,
		usecase.AnalyzeOptions{
			BasePath:       cfg.Repository.BasePath,
			Query:          cfg.Analysis.Query,
			TopK:           cfg.Retrieve.TopK,
			EmbedBatchSize: cfg.Embedding.BatchSize,
			Policy: retriever.Policy{
				PrimaryMarker:   cfg.Retrieve.PrimaryMarker,
				ArtifactMarkers: cfg.Retrieve.ArtifactMarkers,
			},
		},
		logger,
	)
	return p, nil
}
