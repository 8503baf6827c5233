package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the record format.
const CurrentSchemaVersion = 1

var keySchemaVersion = []byte("schema_version")

// SchemaVersion returns the stored schema version, or 0 for a new database.
func (s *HistoryStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &version)
	})
	return version, err
}

// Migrate brings the database up to CurrentSchemaVersion. A database written
// by a newer version is rejected rather than rewritten.
func (s *HistoryStore) Migrate() error {
	version, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("history database created by newer version (v%d > v%d)", version, CurrentSchemaVersion)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for v := version; v < CurrentSchemaVersion; v++ {
			if err := runMigration(tx, v, v+1); err != nil {
				return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
			}
		}

		data, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
}

func runMigration(tx *bbolt.Tx, from, to int) error {
	switch {
	case from == 0 && to == 1:
		_, err := tx.CreateBucketIfNotExists(bucketAnalyses)
		return err
	default:
		return nil
	}
}

// Clear removes every stored analysis and keeps the schema version.
func (s *HistoryStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketAnalyses); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketAnalyses)
		return err
	})
}
