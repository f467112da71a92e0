// Package credential implements the access-key/secret-key credential
// store: records persisted in the metadata store, never deleted, only
// deactivated.
package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"simples3/internal/metadata"
)

var (
	ErrInvalidAccessKeyID = errors.New("credential: unknown access key id")
	ErrInactive           = errors.New("credential: access key is inactive")
	ErrAlreadyExists       = errors.New("credential: access key already exists")
)

const keyPrefix = "cred/"

// Credential is the persisted record for one access-key id.
type Credential struct {
	AccessKeyID string    `json:"access_key_id"`
	SecretKey   string    `json:"secret_key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"active"`
}

type Store struct {
	meta *metadata.Store
}

func NewStore(meta *metadata.Store) *Store {
	return &Store{meta: meta}
}

func recordKey(accessKeyID string) string {
	return keyPrefix + accessKeyID
}

// GenerateAccessKeyID mints a new AWS-style access-key id: "AKIA" followed
// by the first 16 characters of a UUIDv4 with hyphens stripped, upper-cased.
func GenerateAccessKeyID() string {
	return "AKIA" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:16]
}

// GenerateSecretKey mints 30 random bytes, hex-encoded to a 60-character
// secret; callers that
// need AWS-compatible formatting may post-process, the server only compares
// it byte-for-byte against itself.
func GenerateSecretKey() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}

// Create persists a new, active credential. Returns ErrAlreadyExists if the
// access-key id is already present (active or not).
func (s *Store) Create(c Credential) error {
	if c.AccessKeyID == "" || c.SecretKey == "" {
		return fmt.Errorf("credential: access key id and secret are required")
	}
	exists, err := s.meta.Has(recordKey(c.AccessKeyID))
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	c.Active = true
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.meta.Put(recordKey(c.AccessKeyID), body)
}

// Get returns the stored record for accessKeyID.
func (s *Store) Get(accessKeyID string) (Credential, error) {
	raw, err := s.meta.Get(recordKey(accessKeyID))
	if errors.Is(err, metadata.ErrNotFound) {
		return Credential{}, ErrInvalidAccessKeyID
	}
	if err != nil {
		return Credential{}, err
	}
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credential{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	return c, nil
}

// Authenticate returns the secret key for accessKeyID, failing if the key
// is unknown or inactive. Callers use this before signature verification.
func (s *Store) Authenticate(accessKeyID string) (secretKey string, err error) {
	c, err := s.Get(accessKeyID)
	if err != nil {
		return "", err
	}
	if !c.Active {
		return "", ErrInactive
	}
	return c.SecretKey, nil
}

// SetActive toggles the active flag on an existing credential.
func (s *Store) SetActive(accessKeyID string, active bool) error {
	c, err := s.Get(accessKeyID)
	if err != nil {
		return err
	}
	c.Active = active
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.meta.Put(recordKey(c.AccessKeyID), body)
}

// List returns every credential, sorted by access-key id.
func (s *Store) List() ([]Credential, error) {
	entries, _, err := s.meta.ScanPrefix(keyPrefix, "", 0)
	if err != nil {
		return nil, err
	}
	out := make([]Credential, 0, len(entries))
	for _, e := range entries {
		var c Credential
		if err := json.Unmarshal(e.Value, &c); err != nil {
			return nil, fmt.Errorf("unmarshal credential %q: %w", e.Key, err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessKeyID < out[j].AccessKeyID })
	return out, nil
}
