package port

import "codeflow/internal/domain"

type Chunker interface {
	Chunk(file domain.RepositoryFile) ([]domain.Chunk, error)

	// ChunkAll chunks files in order, concatenating their chunks.
	ChunkAll(files []domain.RepositoryFile) ([]domain.Chunk, error)
}
