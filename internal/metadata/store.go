// Package metadata wraps an embedded ordered key-value engine (bbolt) behind
// the narrow contract the rest of the server needs: atomic point put/delete,
// point get, and lexicographic prefix scans over ASCII-prefixed keys.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("metadata: key not found")

var rootBucket = []byte("simples3")

// Store is a single bolt database holding every namespace under one bucket,
// keyed by ASCII-prefixed strings ("bucket/<name>", "obj/<bucket>/<key>",
// and so on).
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the metadata store rooted at path. Only
// one process may hold the store open at a time; bolt enforces this with an
// flock-based exclusive open.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open metadata store %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init metadata store %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes value under key, durably, before returning.
func (s *Store) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put([]byte(key), value)
	})
}

// Get reads the value stored under key. Returns ErrNotFound if absent.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Has reports whether key exists.
func (s *Store) Has(key string) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Delete([]byte(key))
	})
}

// DeleteAll removes every key under the given keys slice in one transaction.
func (s *Store) DeleteAll(keys []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rootBucket)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Entry is one key/value pair returned by a prefix scan.
type Entry struct {
	Key   string
	Value []byte
}

// ScanPrefix returns every entry whose key starts with prefix, in
// lexicographic order. If limit > 0, scanning stops after limit entries
// (excluding ones filtered by startAfter) and more=true is returned.
func (s *Store) ScanPrefix(prefix, startAfter string, limit int) (entries []Entry, more bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		seek := prefix
		if startAfter != "" && startAfter > seek {
			seek = startAfter
		}
		prefixBytes := []byte(prefix)
		for k, v := c.Seek([]byte(seek)); k != nil && bytes.HasPrefix(k, prefixBytes); k, v = c.Next() {
			key := string(k)
			if startAfter != "" && key <= startAfter {
				continue
			}
			if limit > 0 && len(entries) >= limit {
				more = true
				break
			}
			entries = append(entries, Entry{Key: key, Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return entries, more, err
}

// CountPrefix returns the number of keys starting with prefix, stopping
// early once it reaches max when max > 0 (useful for bounded "is bucket
// empty" checks).
func (s *Store) CountPrefix(prefix string, max int) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, _ = c.Next() {
			count++
			if max > 0 && count >= max {
				return nil
			}
		}
		return nil
	})
	return count, err
}

// Update runs fn inside a single read-write transaction via a minimal view
// that exposes only Put/Get/Delete, so callers can group several writes
// (e.g. multipart completion) into one atomic commit.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{b: btx.Bucket(rootBucket)})
	})
}

// Tx is the mutation surface exposed inside Update.
type Tx struct {
	b *bolt.Bucket
}

func (t *Tx) Put(key string, value []byte) error {
	return t.b.Put([]byte(key), value)
}

func (t *Tx) Get(key string) ([]byte, error) {
	v := t.b.Get([]byte(key))
	if v == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *Tx) Delete(key string) error {
	return t.b.Delete([]byte(key))
}
