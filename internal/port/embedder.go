package port

import (
	"context"

	"codeflow/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension, or 0 if not yet known.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex is a k-nearest-neighbour structure over embedded chunks.
type VectorIndex interface {
	Add(items []domain.EmbeddedChunk) error

	// Search returns at most k chunks ordered by ascending distance.
	Search(query []float32, k int) ([]domain.ScoredChunk, error)

	Len() int

	Dimension() int
}
