package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	m/<scope>           scope marker (empty value)
//	s/<scope>\x00<key>  scope entry
var (
	markerPrefix = []byte("m/")
	entryPrefix  = []byte("s/")
)

// BadgerStore implements Store using BadgerDB
type BadgerStore struct {
	db     *badger.DB
	stopCh chan struct{}
}

// NewBadgerStore creates a new BadgerDB-backed store
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &BadgerStore{db: db, stopCh: make(chan struct{})}
	go s.runGC()
	return s, nil
}

// runGC reclaims value log space periodically
func (s *BadgerStore) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.db.RunValueLogGC(0.7)
		case <-s.stopCh:
			return
		}
	}
}

// Close stops background GC and closes the database
func (s *BadgerStore) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

func markerKey(scope string) []byte {
	return append(append([]byte{}, markerPrefix...), scope...)
}

func scopePrefix(scope string) []byte {
	p := append(append([]byte{}, entryPrefix...), scope...)
	return append(p, 0)
}

func entryKey(scope, key string) []byte {
	return append(scopePrefix(scope), key...)
}

func (s *BadgerStore) Scopes() ([]string, error) {
	set := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(markerPrefix); it.ValidForPrefix(markerPrefix); it.Next() {
			k := it.Item().Key()
			set[string(bytes.TrimPrefix(k, markerPrefix))] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

func (s *BadgerStore) Get(scope string) (map[string]string, error) {
	kv := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanScope(txn, scope, func(key string, item *badger.Item) error {
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			kv[key] = string(v)
			return nil
		})
	})
	return kv, err
}

func (s *BadgerStore) Put(scope string, kv map[string]string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(markerKey(scope), nil); err != nil {
			return err
		}
		return setAll(txn, scope, kv)
	})
}

func (s *BadgerStore) Replace(scope string, kv map[string]string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deleteEntries(txn, scope); err != nil {
			return err
		}
		if err := txn.Set(markerKey(scope), nil); err != nil {
			return err
		}
		return setAll(txn, scope, kv)
	})
}

func (s *BadgerStore) DropScope(scope string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deleteEntries(txn, scope); err != nil {
			return err
		}
		return txn.Delete(markerKey(scope))
	})
}

func setAll(txn *badger.Txn, scope string, kv map[string]string) error {
	for k, v := range kv {
		if v == "" {
			if err := txn.Delete(entryKey(scope, k)); err != nil {
				return err
			}
			continue
		}
		if err := txn.Set(entryKey(scope, k), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func deleteEntries(txn *badger.Txn, scope string) error {
	var keys [][]byte
	err := scanScope(txn, scope, func(_ string, item *badger.Item) error {
		keys = append(keys, item.KeyCopy(nil))
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func scanScope(txn *badger.Txn, scope string, fn func(key string, item *badger.Item) error) error {
	prefix := scopePrefix(scope)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := string(bytes.TrimPrefix(item.Key(), prefix))
		if err := fn(key, item); err != nil {
			return err
		}
	}
	return nil
}
