package port

import (
	"context"

	"codeflow/internal/domain"
)

type Collector interface {
	Collect(ctx context.Context, root string) ([]domain.RepositoryFile, error)
}
