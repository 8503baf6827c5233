package port

import "codeflow/internal/domain"

// HistoryStore keeps past analyses per repository.
type HistoryStore interface {
	Append(record domain.AnalysisRecord) (domain.AnalysisRecord, error)

	// List returns up to limit records for repo, newest first.
	List(repo string, limit int) ([]domain.AnalysisRecord, error)

	Get(repo string, id uint64) (domain.AnalysisRecord, error)

	Repos() ([]string, error)

	Close() error
}
