// Package lifecycle implements the per-bucket lifecycle configuration
// entity and the background expiration scanner that acts on it.
package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"simples3/internal/metadata"
)

var ErrNoSuchConfiguration = errors.New("lifecycle: no such configuration")

const keyPrefix = "lifecycle/"

const (
	StatusEnabled  = "Enabled"
	StatusDisabled = "Disabled"
)

// Rule is one lifecycle rule. Exactly one of ExpirationDays/ExpirationDate
// must be set (enforced by Validate).
type Rule struct {
	ID                    string            `json:"id"`
	Status                string            `json:"status"`
	Prefix                string            `json:"prefix,omitempty"`
	Tags                  map[string]string `json:"tags,omitempty"`
	ObjectSizeGreaterThan int64             `json:"object_size_greater_than,omitempty"`
	ObjectSizeLessThan    int64             `json:"object_size_less_than,omitempty"`
	ExpirationDays        *int              `json:"expiration_days,omitempty"`
	ExpirationDate        *time.Time        `json:"expiration_date,omitempty"`
}

// Configuration is the full set of rules attached to one bucket.
type Configuration struct {
	Rules []Rule `json:"rules"`
}

func (c Configuration) Validate() error {
	var errs []error
	if len(c.Rules) == 0 {
		errs = append(errs, errors.New("lifecycle validation: at least one rule is required"))
	}
	for i, r := range c.Rules {
		prefix := fmt.Sprintf("lifecycle validation: rules[%d]", i)
		if r.Status != StatusEnabled && r.Status != StatusDisabled {
			errs = append(errs, fmt.Errorf("%s.status must be Enabled or Disabled, got %q", prefix, r.Status))
		}
		hasDays := r.ExpirationDays != nil
		hasDate := r.ExpirationDate != nil
		if hasDays == hasDate {
			errs = append(errs, fmt.Errorf("%s.expiration must set exactly one of days or date", prefix))
		}
		if hasDays && *r.ExpirationDays < 0 {
			errs = append(errs, fmt.Errorf("%s.expiration_days must be >= 0", prefix))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Matches reports whether an object with the given key, tags, size, and
// creation time is expired by this rule at instant now.
func (r Rule) Matches(key string, tags map[string]string, size int64, createdAt time.Time, now time.Time) bool {
	if r.Status != StatusEnabled {
		return false
	}
	if r.Prefix != "" && !hasPrefix(key, r.Prefix) {
		return false
	}
	for k, v := range r.Tags {
		if tags[k] != v {
			return false
		}
	}
	if r.ObjectSizeGreaterThan > 0 && size <= r.ObjectSizeGreaterThan {
		return false
	}
	if r.ObjectSizeLessThan > 0 && size >= r.ObjectSizeLessThan {
		return false
	}
	if r.ExpirationDays != nil {
		return now.Sub(createdAt) >= time.Duration(*r.ExpirationDays)*24*time.Hour
	}
	if r.ExpirationDate != nil {
		return !now.Before(*r.ExpirationDate)
	}
	return false
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// Store persists per-bucket lifecycle configuration in the metadata store.
type Store struct {
	meta *metadata.Store
}

func NewStore(meta *metadata.Store) *Store {
	return &Store{meta: meta}
}

func (s *Store) Get(bucket string) (Configuration, error) {
	raw, err := s.meta.Get(keyPrefix + bucket)
	if errors.Is(err, metadata.ErrNotFound) {
		return Configuration{}, ErrNoSuchConfiguration
	}
	if err != nil {
		return Configuration{}, err
	}
	var cfg Configuration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("unmarshal lifecycle configuration for %q: %w", bucket, err)
	}
	return cfg, nil
}

func (s *Store) Put(bucket string, cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal lifecycle configuration: %w", err)
	}
	return s.meta.Put(keyPrefix+bucket, body)
}

func (s *Store) Delete(bucket string) error {
	return s.meta.Delete(keyPrefix + bucket)
}

// Buckets returns the names of every bucket with an attached configuration.
func (s *Store) Buckets() ([]string, error) {
	entries, _, err := s.meta.ScanPrefix(keyPrefix, "", 0)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Key[len(keyPrefix):])
	}
	return names, nil
}
