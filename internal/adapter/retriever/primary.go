package retriever

import (
	"context"
	"fmt"
	"strings"

	"codeflow/internal/domain"
	"codeflow/internal/port"
)

// Policy decides which results count as primary source code.
type Policy struct {
	PrimaryMarker   string
	ArtifactMarkers []string
}

func DefaultPolicy() Policy {
	return Policy{
		PrimaryMarker:   "/src/",
		ArtifactMarkers: []string{".cxx", "build"},
	}
}

// IsPrimary reports whether a repository relative path is primary source.
func (p Policy) IsPrimary(relPath string) bool {
	path := "/" + strings.TrimPrefix(relPath, "/")
	if p.PrimaryMarker == "" || !strings.Contains(path, p.PrimaryMarker) {
		return false
	}
	for _, marker := range p.ArtifactMarkers {
		if marker != "" && strings.Contains(path, marker) {
			return false
		}
	}
	return true
}

// Rerank moves primary results ahead of the rest, keeping the relative
// order inside each group, and truncates to k.
func Rerank(results []domain.ScoredChunk, policy Policy, k int) []domain.ScoredChunk {
	primary := make([]domain.ScoredChunk, 0, len(results))
	var other []domain.ScoredChunk

	for _, r := range results {
		r.Primary = policy.IsPrimary(r.Chunk.RelPath)
		if r.Primary {
			primary = append(primary, r)
		} else {
			other = append(other, r)
		}
	}

	ordered := append(primary, other...)
	if k >= 0 && len(ordered) > k {
		ordered = ordered[:k]
	}
	return ordered
}

// PrimaryFirstRetriever embeds the query, runs a k-NN search and reranks
// the hits so that primary source chunks come first.
type PrimaryFirstRetriever struct {
	embedder port.Embedder
	index    port.VectorIndex
	policy   Policy
}

func NewPrimaryFirstRetriever(embedder port.Embedder, index port.VectorIndex, policy Policy) *PrimaryFirstRetriever {
	return &PrimaryFirstRetriever{
		embedder: embedder,
		index:    index,
		policy:   policy,
	}
}

func (r *PrimaryFirstRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	results, err := r.index.Search(embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return Rerank(results, r.policy, k), nil
}
