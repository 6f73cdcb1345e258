package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// bucketScopes holds one nested bucket per scope
var bucketScopes = []byte("scopes")

// BoltStore implements Store using BoltDB, so the local replica survives
// agent restarts.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "shepherd.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketScopes); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketScopes, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Scopes() ([]string, error) {
	set := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScopes).ForEach(func(k, v []byte) error {
			if v == nil {
				set[string(k)] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

func (s *BoltStore) Get(scope string) (map[string]string, error) {
	kv := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScopes).Bucket([]byte(scope))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			kv[string(k)] = string(v)
			return nil
		})
	})
	return kv, err
}

func (s *BoltStore) Put(scope string, kv map[string]string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketScopes).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return fmt.Errorf("failed to create scope %s: %w", scope, err)
		}
		return putAll(b, kv)
	})
}

func (s *BoltStore) Replace(scope string, kv map[string]string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketScopes)
		if root.Bucket([]byte(scope)) != nil {
			if err := root.DeleteBucket([]byte(scope)); err != nil {
				return fmt.Errorf("failed to clear scope %s: %w", scope, err)
			}
		}
		b, err := root.CreateBucket([]byte(scope))
		if err != nil {
			return fmt.Errorf("failed to create scope %s: %w", scope, err)
		}
		return putAll(b, kv)
	})
}

func (s *BoltStore) DropScope(scope string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketScopes)
		if root.Bucket([]byte(scope)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(scope))
	})
}

func putAll(b *bolt.Bucket, kv map[string]string) error {
	for k, v := range kv {
		if v == "" {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := b.Put([]byte(k), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}
