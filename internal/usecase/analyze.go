package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"codeflow/internal/adapter/index"
	"codeflow/internal/adapter/retriever"
	"codeflow/internal/domain"
	"codeflow/internal/observability"
	"codeflow/internal/port"
)

// Pipeline stage names, also used as span suffixes.
const (
	StageCollect  = "collect"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageIndex    = "index"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
	StageValidate = "validate"
)

// ProgressFunc is called as stages advance. total is 0 when unknown.
type ProgressFunc func(stage string, done, total int)

// AnalyzeOptions configures one analysis run.
type AnalyzeOptions struct {
	BasePath       string
	Query          string
	TopK           int
	EmbedBatchSize int
	Policy         retriever.Policy
}

// AnalyzeUseCase runs the collect, chunk, embed, index, retrieve, generate
// and validate stages over a single repository. Every call builds its own
// index; nothing is shared between requests except the query vector cache.
type AnalyzeUseCase struct {
	collector     port.Collector
	chunker       port.Chunker
	embedder      port.Embedder
	queryEmbedder port.Embedder
	generator     *Generator
	validator     *Validator
	history       port.HistoryStore
	opts          AnalyzeOptions
	logger        *slog.Logger
	progress      ProgressFunc
}

// NewAnalyzeUseCase creates a new analyze use case. queryEmbedder may be a
// cached wrapper around embedder; history may be nil.
func NewAnalyzeUseCase(
	collector port.Collector,
	chunker port.Chunker,
	embedder port.Embedder,
	queryEmbedder port.Embedder,
	generator *Generator,
	validator *Validator,
	history port.HistoryStore,
	opts AnalyzeOptions,
	logger *slog.Logger,
) *AnalyzeUseCase {
	if queryEmbedder == nil {
		queryEmbedder = embedder
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeUseCase{
		collector:     collector,
		chunker:       chunker,
		embedder:      embedder,
		queryEmbedder: queryEmbedder,
		generator:     generator,
		validator:     validator,
		history:       history,
		opts:          opts,
		logger:        logger,
	}
}

// WithProgress returns a copy of the use case that reports stage progress.
func (u *AnalyzeUseCase) WithProgress(fn ProgressFunc) *AnalyzeUseCase {
	c := *u
	c.progress = fn
	return &c
}

// Analyze resolves repoName under the base path and analyzes it. Names that
// are not a single path element are reported as not found.
func (u *AnalyzeUseCase) Analyze(ctx context.Context, repoName string) (*domain.Analysis, error) {
	path := filepath.Join(u.opts.BasePath, repoName)
	if !validRepoName(repoName) {
		return nil, &domain.RepositoryNotFoundError{Path: path}
	}
	return u.AnalyzePath(ctx, repoName, path)
}

// AnalyzePath analyzes the repository rooted at path, labelled repo.
func (u *AnalyzeUseCase) AnalyzePath(ctx context.Context, repo, path string) (*domain.Analysis, error) {
	start := time.Now()
	log := u.logger.With("repo", repo)
	var stats domain.RunStats

	var files []domain.RepositoryFile
	err := u.stage(ctx, StageCollect, repo, func(ctx context.Context) error {
		var err error
		files, err = u.collector.Collect(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	stats.Files = len(files)
	u.report(StageCollect, len(files), len(files))
	log.Info("collected files", "files", len(files))

	var chunks []domain.Chunk
	err = u.stage(ctx, StageChunk, repo, func(ctx context.Context) error {
		var err error
		chunks, err = u.chunker.ChunkAll(files)
		if err != nil {
			return err
		}
		u.report(StageChunk, len(files), len(files))
		if len(chunks) == 0 {
			return domain.ErrNoContent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.Chunks = len(chunks)
	log.Info("chunked files", "chunks", len(chunks))

	var embedded []domain.EmbeddedChunk
	err = u.stage(ctx, StageEmbed, repo, func(ctx context.Context) error {
		var err error
		embedded, err = u.embedChunks(ctx, chunks)
		return err
	})
	if err != nil {
		return nil, err
	}

	var idx *index.Flat
	err = u.stage(ctx, StageIndex, repo, func(ctx context.Context) error {
		var err error
		idx, err = index.Build(ctx, embedded)
		return err
	})
	if err != nil {
		return nil, err
	}
	stats.Dimension = idx.Dimension()
	u.report(StageIndex, idx.Len(), idx.Len())

	var retrieved []domain.ScoredChunk
	err = u.stage(ctx, StageRetrieve, repo, func(ctx context.Context) error {
		var r port.Retriever = retriever.NewPrimaryFirstRetriever(u.queryEmbedder, idx, u.opts.Policy)
		var err error
		retrieved, err = r.Search(ctx, u.opts.Query, u.opts.TopK)
		return err
	})
	if err != nil {
		return nil, err
	}
	stats.Retrieved = len(retrieved)
	u.report(StageRetrieve, len(retrieved), len(retrieved))
	log.Info("retrieved chunks", "retrieved", len(retrieved), "primary", countPrimary(retrieved))

	var gen domain.Generation
	_ = u.stage(ctx, StageGenerate, repo, func(ctx context.Context) error {
		gen = u.generator.Generate(ctx, retrieved, u.opts.Query)
		if gen.Failed() {
			return gen.Err
		}
		return nil
	})
	u.report(StageGenerate, 1, 1)

	var analysis *domain.Analysis
	err = u.stage(ctx, StageValidate, repo, func(ctx context.Context) error {
		var err error
		analysis, err = u.validator.Validate(gen)
		return err
	})
	if err != nil {
		log.Warn("response failed validation", "error", err)
		return nil, err
	}
	u.report(StageValidate, 1, 1)

	stats.Duration = time.Since(start)
	analysis.Repo = repo
	analysis.Stats = stats
	u.record(log, analysis)

	log.Info("analysis complete", "duration", stats.Duration, "model", analysis.Model)
	return analysis, nil
}

func (u *AnalyzeUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error) {
	embedded := make([]domain.EmbeddedChunk, 0, len(chunks))
	batch := u.opts.EmbedBatchSize

	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		vectors, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}

		for i, c := range chunks[start:end] {
			embedded = append(embedded, domain.EmbeddedChunk{Chunk: c, Vector: vectors[i]})
		}
		u.report(StageEmbed, end, len(chunks))
	}
	return embedded, nil
}

func (u *AnalyzeUseCase) record(log *slog.Logger, analysis *domain.Analysis) {
	if u.history == nil {
		return
	}
	rec, err := u.history.Append(domain.AnalysisRecord{
		Repo:      analysis.Repo,
		CreatedAt: time.Now().UTC(),
		Model:     analysis.Model,
		Stats:     analysis.Stats,
		Result:    analysis.Raw,
	})
	if err != nil {
		log.Warn("failed to record analysis", "error", err)
		return
	}
	log.Debug("recorded analysis", "id", rec.ID)
}

func (u *AnalyzeUseCase) stage(ctx context.Context, name, repo string, fn func(context.Context) error) error {
	ctx, span := observability.StartStageSpan(ctx, name, repo)
	err := fn(ctx)
	observability.EndSpan(span, err)
	return err
}

func (u *AnalyzeUseCase) report(stage string, done, total int) {
	if u.progress != nil {
		u.progress(stage, done, total)
	}
}

func validRepoName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func countPrimary(results []domain.ScoredChunk) int {
	n := 0
	for _, r := range results {
		if r.Primary {
			n++
		}
	}
	return n
}

