// Package bucketreg implements the bucket registry: bucket records plus
// the CORS/lifecycle/policy attachments that live alongside them in the
// metadata store.
package bucketreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"simples3/internal/metadata"
)

var (
	ErrNotFound    = errors.New("bucketreg: no such bucket")
	ErrExists      = errors.New("bucketreg: bucket already exists")
	ErrWrongOwner  = errors.New("bucketreg: bucket owned by a different principal")
)

const (
	bucketPrefix   = "bucket/"
	corsPrefix     = "cors/"
	lifecyclePrefix = "lifecycle/"
	policyPrefix   = "policy/"
)

// Bucket is the persisted bucket record.
type Bucket struct {
	Name               string    `json:"name"`
	CreationDate       time.Time `json:"creation_date"`
	Owner              string    `json:"owner"`
	AnonymousRead      bool      `json:"anonymous_read"`
	AnonymousListPublic bool     `json:"anonymous_list_public"`
}

type Store struct {
	meta *metadata.Store
}

func NewStore(meta *metadata.Store) *Store {
	return &Store{meta: meta}
}

func bucketKey(name string) string { return bucketPrefix + name }

// Create inserts a new bucket record owned by owner. If the bucket already
// exists and is owned by owner, this is a no-op (idempotent CreateBucket).
// If owned by someone else, ErrExists.
func (s *Store) Create(name, owner string) error {
	existing, err := s.Get(name)
	if err == nil {
		if existing.Owner == owner {
			return nil
		}
		return ErrExists
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	b := Bucket{Name: name, CreationDate: time.Now().UTC(), Owner: owner}
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bucket record: %w", err)
	}
	return s.meta.Put(bucketKey(name), body)
}

func (s *Store) Get(name string) (Bucket, error) {
	raw, err := s.meta.Get(bucketKey(name))
	if errors.Is(err, metadata.ErrNotFound) {
		return Bucket{}, ErrNotFound
	}
	if err != nil {
		return Bucket{}, err
	}
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bucket{}, fmt.Errorf("unmarshal bucket record %q: %w", name, err)
	}
	return b, nil
}

func (s *Store) Exists(name string) (bool, error) {
	_, err := s.Get(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put persists an updated record (used to flip anonymous-access flags).
func (s *Store) Put(b Bucket) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bucket record: %w", err)
	}
	return s.meta.Put(bucketKey(b.Name), body)
}

// List returns every bucket sorted by name.
func (s *Store) List() ([]Bucket, error) {
	entries, _, err := s.meta.ScanPrefix(bucketPrefix, "", 0)
	if err != nil {
		return nil, err
	}
	out := make([]Bucket, 0, len(entries))
	for _, e := range entries {
		var b Bucket
		if err := json.Unmarshal(e.Value, &b); err != nil {
			return nil, fmt.Errorf("unmarshal bucket record %q: %w", e.Key, err)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the bucket record plus any attached CORS/lifecycle/policy
// configuration. Callers are responsible for verifying the bucket holds no
// live objects or in-flight multipart uploads first.
func (s *Store) Delete(name string) error {
	return s.meta.DeleteAll([]string{
		bucketKey(name),
		corsPrefix + name,
		lifecyclePrefix + name,
		policyPrefix + name,
	})
}

// --- Policy attachment ---

func (s *Store) GetPolicy(bucket string) ([]byte, error) {
	raw, err := s.meta.Get(policyPrefix + bucket)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (s *Store) PutPolicy(bucket string, doc []byte) error {
	return s.meta.Put(policyPrefix+bucket, doc)
}

func (s *Store) DeletePolicy(bucket string) error {
	return s.meta.Delete(policyPrefix + bucket)
}
