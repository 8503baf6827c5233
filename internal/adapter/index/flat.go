package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"codeflow/internal/domain"
)

var ErrEmptyIndex = errors.New("index has no vectors")

// Flat is an exhaustive squared Euclidean index. It is built for a single
// analysis and is not safe for concurrent mutation.
type Flat struct {
	dimension int
	items     []domain.EmbeddedChunk
}

// NewFlat creates an empty index. A dimension of 0 is fixed by the first Add.
func NewFlat(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

// Build creates an index over items. It rejects an empty input.
func Build(ctx context.Context, items []domain.EmbeddedChunk) (*Flat, error) {
	if len(items) == 0 {
		return nil, ErrEmptyIndex
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := NewFlat(len(items[0].Vector))
	if err := idx.Add(items); err != nil {
		return nil, err
	}
	return idx, nil
}

func (f *Flat) Add(items []domain.EmbeddedChunk) error {
	for i, item := range items {
		if f.dimension == 0 {
			f.dimension = len(item.Vector)
		}
		if len(item.Vector) != f.dimension {
			return fmt.Errorf("vector %d dimension mismatch: expected %d, got %d", len(f.items)+i, f.dimension, len(item.Vector))
		}
	}
	f.items = append(f.items, items...)
	return nil
}

// Search returns the min(k, Len()) nearest chunks by ascending squared L2
// distance. Exact ties keep insertion order.
func (f *Flat) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	if len(f.items) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	scored := make([]domain.ScoredChunk, len(f.items))
	for i, item := range f.items {
		scored[i] = domain.ScoredChunk{
			Chunk:    item.Chunk,
			Distance: squaredL2(query, item.Vector),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})

	if k > len(scored) {
		k = len(scored)
	}
	results := scored[:k]
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}

func (f *Flat) Len() int {
	return len(f.items)
}

func (f *Flat) Dimension() int {
	return f.dimension
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
