package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeflow/internal/domain"
	"go.etcd.io/bbolt"
)

var (
	bucketAnalyses = []byte("analyses")
	bucketMeta     = []byte("meta")
)

// HistoryStore keeps completed analyses in a bbolt file, one nested bucket
// per repository keyed by a big-endian sequence number.
type HistoryStore struct {
	db         *bbolt.DB
	maxPerRepo int
}

// NewHistoryStore opens or creates the database at path. A maxPerRepo of 0
// keeps every record.
func NewHistoryStore(path string, maxPerRepo int) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketAnalyses, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &HistoryStore{db: db, maxPerRepo: maxPerRepo}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Append stores rec under its repository and assigns its ID. The oldest
// records past the per-repository limit are dropped in the same transaction.
func (s *HistoryStore) Append(rec domain.AnalysisRecord) (domain.AnalysisRecord, error) {
	if rec.Repo == "" {
		return rec, fmt.Errorf("analysis record has no repository")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketAnalyses).CreateBucketIfNotExists([]byte(rec.Repo))
		if err != nil {
			return fmt.Errorf("failed to create bucket for %s: %w", rec.Repo, err)
		}

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = id

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), data); err != nil {
			return err
		}

		return s.prune(b)
	})
	return rec, err
}

func (s *HistoryStore) prune(b *bbolt.Bucket) error {
	if s.maxPerRepo <= 0 {
		return nil
	}

	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	excess := len(keys) - s.maxPerRepo
	if excess <= 0 {
		return nil
	}

	stale := keys[:excess]
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// List returns the newest records for repo first. A limit of 0 returns all.
func (s *HistoryStore) List(repo string, limit int) ([]domain.AnalysisRecord, error) {
	var records []domain.AnalysisRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAnalyses).Bucket([]byte(repo))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec domain.AnalysisRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	return records, err
}

// Get returns a single record.
func (s *HistoryStore) Get(repo string, id uint64) (domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAnalyses).Bucket([]byte(repo))
		if b == nil {
			return fmt.Errorf("%w: no history for %s", domain.ErrAnalysisNotFound, repo)
		}
		data := b.Get(itob(id))
		if data == nil {
			return fmt.Errorf("%w: %d for %s", domain.ErrAnalysisNotFound, id, repo)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// Repos lists every repository with at least one stored record.
func (s *HistoryStore) Repos() ([]string, error) {
	var repos []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAnalyses).ForEach(func(k, v []byte) error {
			if v == nil {
				repos = append(repos, string(k))
			}
			return nil
		})
	})
	return repos, err
}

// Delete drops every record for repo.
func (s *HistoryStore) Delete(repo string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketAnalyses).DeleteBucket([]byte(repo))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
