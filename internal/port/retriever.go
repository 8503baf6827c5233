package port

import (
	"context"

	"codeflow/internal/domain"
)

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}
