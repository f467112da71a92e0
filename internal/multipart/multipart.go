// Package multipart implements the multipart upload state machine:
// Initiated -> UploadPart* -> Completed|Aborted, backed by the metadata
// store's mpu/mpu-part namespaces and part files on disk.
package multipart

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"simples3/internal/metadata"
	"simples3/internal/objectstore"
	"simples3/internal/pathmap"
)

var (
	ErrNoSuchUpload     = errors.New("multipart: no such upload")
	ErrInvalidPart      = errors.New("multipart: invalid part")
	ErrInvalidPartOrder = errors.New("multipart: parts must be supplied in ascending order")
	ErrEntityTooSmall   = errors.New("multipart: part smaller than the minimum size")
)

const (
	maxPartNumber = 10000
	minPartSize   = 5 << 20
)

const (
	manifestPrefix = "mpu/"
	partPrefix     = "mpu-part/"
)

func manifestKey(bucket, uploadID string) string { return manifestPrefix + bucket + "/" + uploadID }
func partKey(uploadID string, partNumber int) string {
	return fmt.Sprintf("%s%s/%05d", partPrefix, uploadID, partNumber)
}

type manifest struct {
	UploadID     string            `json:"upload_id"`
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	ContentType  string            `json:"content_type"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type partRecord struct {
	PartNumber   int       `json:"part_number"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// PartInfo is returned to callers after a successful UploadPart.
type PartInfo struct {
	PartNumber   int
	Size         int64
	ETag         string
	LastModified time.Time
}

// CompletedPart is one entry of the part list a CompleteMultipartUpload
// request supplies.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

type Upload struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

type ListUploadsOptions struct {
	Prefix  string
	MaxKeys int
}

type ListUploadsResult struct {
	Uploads     []Upload
	IsTruncated bool
}

type ListPartsOptions struct {
	PartNumberMarker int
	MaxParts         int
}

type ListPartsResult struct {
	Parts                []PartInfo
	IsTruncated          bool
	NextPartNumberMarker int
}

// Store drives the multipart state machine. It owns a root directory for
// part files (distinct from objectstore's, see pathmap.MultipartDir) and
// writes the assembled object through an *objectstore.Store.
type Store struct {
	root    string
	meta    *metadata.Store
	objects *objectstore.Store
}

func New(root string, meta *metadata.Store, objects *objectstore.Store) *Store {
	return &Store{root: root, meta: meta, objects: objects}
}

// Create starts a new upload and returns its upload ID.
func (s *Store) Create(ctx context.Context, bucket, key, contentType string, userMetadata map[string]string) (string, error) {
	if err := pathmap.ValidateKey(key); err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	m := manifest{
		UploadID:     uploadID,
		Bucket:       bucket,
		Key:          key,
		ContentType:  contentType,
		UserMetadata: userMetadata,
		CreatedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(pathmap.MultipartDir(s.root, bucket, uploadID), 0o755); err != nil {
		return "", fmt.Errorf("multipart: create upload dir: %w", err)
	}
	if err := s.meta.Put(manifestKey(bucket, uploadID), body); err != nil {
		return "", err
	}
	return uploadID, nil
}

func (s *Store) loadManifest(bucket, uploadID string) (manifest, error) {
	raw, err := s.meta.Get(manifestKey(bucket, uploadID))
	if errors.Is(err, metadata.ErrNotFound) {
		return manifest{}, ErrNoSuchUpload
	}
	if err != nil {
		return manifest{}, err
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return manifest{}, fmt.Errorf("multipart: unmarshal manifest: %w", err)
	}
	return m, nil
}

// UploadPart streams body to a part file and records its metadata,
// overwriting any prior attempt at the same part number.
func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.Reader, maxObjectSize int64, contentMD5 string) (PartInfo, error) {
	if partNumber <= 0 || partNumber > maxPartNumber {
		return PartInfo{}, ErrInvalidPart
	}
	m, err := s.loadManifest(bucket, uploadID)
	if err != nil {
		return PartInfo{}, err
	}
	if m.Key != key {
		return PartInfo{}, ErrNoSuchUpload
	}

	dir := pathmap.MultipartDir(s.root, bucket, uploadID)
	tmp, err := os.CreateTemp(dir, "part-*.tmp")
	if err != nil {
		return PartInfo{}, fmt.Errorf("multipart: create part staging file: %w", err)
	}
	staged := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(staged)
		}
	}()

	hasher := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		_ = tmp.Close()
		return PartInfo{}, fmt.Errorf("multipart: write part: %w", err)
	}
	if maxObjectSize > 0 && written > maxObjectSize {
		_ = tmp.Close()
		return PartInfo{}, objectstore.ErrEntityTooLarge
	}
	if err := tmp.Close(); err != nil {
		return PartInfo{}, fmt.Errorf("multipart: close part: %w", err)
	}
	if contentMD5 != "" {
		if err := verifyPartContentMD5(contentMD5, hasher.Sum(nil)); err != nil {
			return PartInfo{}, err
		}
	}

	finalPath := partPath(dir, partNumber)
	if err := os.Rename(staged, finalPath); err != nil {
		return PartInfo{}, fmt.Errorf("multipart: commit part: %w", err)
	}
	cleanup = false

	now := time.Now().UTC()
	etag := hex.EncodeToString(hasher.Sum(nil))
	rec := partRecord{PartNumber: partNumber, Size: written, ETag: etag, LastModified: now}
	raw, err := json.Marshal(rec)
	if err != nil {
		return PartInfo{}, err
	}
	if err := s.meta.Put(partKey(uploadID, partNumber), raw); err != nil {
		return PartInfo{}, err
	}
	return PartInfo{PartNumber: partNumber, Size: written, ETag: etag, LastModified: now}, nil
}

func partPath(dir string, partNumber int) string {
	return dir + fmt.Sprintf("/part-%05d.bin", partNumber)
}

func verifyPartContentMD5(header string, computed []byte) error {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil || len(decoded) != len(computed) {
		return objectstore.ErrBadDigest
	}
	for i := range decoded {
		if decoded[i] != computed[i] {
			return objectstore.ErrBadDigest
		}
	}
	return nil
}

func (s *Store) listPartRecords(uploadID string) ([]partRecord, error) {
	entries, _, err := s.meta.ScanPrefix(partPrefix+uploadID+"/", "", 0)
	if err != nil {
		return nil, err
	}
	recs := make([]partRecord, 0, len(entries))
	for _, e := range entries {
		var rec partRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("multipart: unmarshal part record %q: %w", e.Key, err)
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].PartNumber < recs[j].PartNumber })
	return recs, nil
}

// Complete assembles the selected parts into a single object via
// objectstore.Store.PutAssembled, atomically, then removes the upload's
// state. Every part but the last must meet the minimum part size.
func (s *Store) Complete(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (objectstore.Info, error) {
	m, err := s.loadManifest(bucket, uploadID)
	if err != nil {
		return objectstore.Info{}, err
	}
	if m.Key != key {
		return objectstore.Info{}, ErrNoSuchUpload
	}

	available, err := s.listPartRecords(uploadID)
	if err != nil {
		return objectstore.Info{}, err
	}
	if len(available) == 0 {
		return objectstore.Info{}, ErrInvalidPart
	}

	selected, err := selectParts(available, parts)
	if err != nil {
		return objectstore.Info{}, err
	}

	for i, p := range selected {
		if i < len(selected)-1 && p.Size < minPartSize {
			return objectstore.Info{}, ErrEntityTooSmall
		}
	}

	dir := pathmap.MultipartDir(s.root, bucket, uploadID)
	readers := make([]io.Reader, 0, len(selected))
	closers := make([]io.Closer, 0, len(selected))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	combined := md5.New()
	var totalSize int64
	for _, p := range selected {
		f, err := os.Open(partPath(dir, p.PartNumber))
		if err != nil {
			return objectstore.Info{}, fmt.Errorf("multipart: open part %d: %w", p.PartNumber, err)
		}
		readers = append(readers, f)
		closers = append(closers, f)
		totalSize += p.Size
		decoded, err := hex.DecodeString(p.ETag)
		if err != nil {
			return objectstore.Info{}, fmt.Errorf("multipart: decode part etag: %w", err)
		}
		combined.Write(decoded)
	}
	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(combined.Sum(nil)), len(selected))

	info, err := s.objects.PutAssembled(ctx, bucket, key, io.MultiReader(readers...), totalSize, etag, m.UserMetadata)
	if err != nil {
		return objectstore.Info{}, err
	}

	if err := s.removeUpload(bucket, uploadID); err != nil {
		return objectstore.Info{}, fmt.Errorf("multipart: cleanup after complete: %w", err)
	}
	return info, nil
}

func selectParts(available []partRecord, requested []CompletedPart) ([]partRecord, error) {
	byNumber := make(map[int]partRecord, len(available))
	for _, p := range available {
		byNumber[p.PartNumber] = p
	}
	if len(requested) == 0 {
		return available, nil
	}

	out := make([]partRecord, 0, len(requested))
	last := 0
	for _, r := range requested {
		if r.PartNumber <= 0 || r.PartNumber > maxPartNumber {
			return nil, ErrInvalidPart
		}
		if r.PartNumber <= last {
			return nil, ErrInvalidPartOrder
		}
		last = r.PartNumber
		rec, ok := byNumber[r.PartNumber]
		if !ok {
			return nil, ErrInvalidPart
		}
		want := strings.Trim(r.ETag, "\"")
		if want != "" && want != rec.ETag {
			return nil, ErrInvalidPart
		}
		out = append(out, rec)
	}
	return out, nil
}

// Abort discards an in-progress upload. Aborting an unknown upload ID is
// a no-op.
func (s *Store) Abort(ctx context.Context, bucket, key, uploadID string) error {
	m, err := s.loadManifest(bucket, uploadID)
	if err != nil {
		if errors.Is(err, ErrNoSuchUpload) {
			return nil
		}
		return err
	}
	if m.Key != key {
		return nil
	}
	return s.removeUpload(bucket, uploadID)
}

func (s *Store) removeUpload(bucket, uploadID string) error {
	if err := os.RemoveAll(pathmap.MultipartDir(s.root, bucket, uploadID)); err != nil {
		return err
	}
	keys := []string{manifestKey(bucket, uploadID)}
	entries, _, err := s.meta.ScanPrefix(partPrefix+uploadID+"/", "", 0)
	if err != nil {
		return err
	}
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return s.meta.DeleteAll(keys)
}

// ListUploads returns in-progress uploads for bucket ordered by key.
func (s *Store) ListUploads(ctx context.Context, bucket string, opts ListUploadsOptions) (ListUploadsResult, error) {
	entries, _, err := s.meta.ScanPrefix(manifestPrefix+bucket+"/", "", 0)
	if err != nil {
		return ListUploadsResult{}, err
	}
	uploads := make([]Upload, 0, len(entries))
	for _, e := range entries {
		var m manifest
		if err := json.Unmarshal(e.Value, &m); err != nil {
			return ListUploadsResult{}, fmt.Errorf("multipart: unmarshal manifest %q: %w", e.Key, err)
		}
		if opts.Prefix != "" && !strings.HasPrefix(m.Key, opts.Prefix) {
			continue
		}
		uploads = append(uploads, Upload{Key: m.Key, UploadID: m.UploadID, Initiated: m.CreatedAt})
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key == uploads[j].Key {
			return uploads[i].UploadID < uploads[j].UploadID
		}
		return uploads[i].Key < uploads[j].Key
	})

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}
	if len(uploads) > maxKeys {
		return ListUploadsResult{Uploads: uploads[:maxKeys], IsTruncated: true}, nil
	}
	return ListUploadsResult{Uploads: uploads}, nil
}

// ListParts returns uploaded parts for an in-progress upload, in ascending
// part-number order.
func (s *Store) ListParts(ctx context.Context, bucket, key, uploadID string, opts ListPartsOptions) (ListPartsResult, error) {
	m, err := s.loadManifest(bucket, uploadID)
	if err != nil {
		return ListPartsResult{}, err
	}
	if m.Key != key {
		return ListPartsResult{}, ErrNoSuchUpload
	}
	records, err := s.listPartRecords(uploadID)
	if err != nil {
		return ListPartsResult{}, err
	}

	filtered := make([]partRecord, 0, len(records))
	for _, r := range records {
		if r.PartNumber > opts.PartNumberMarker {
			filtered = append(filtered, r)
		}
	}

	maxParts := opts.MaxParts
	if maxParts <= 0 || maxParts > 1000 {
		maxParts = 1000
	}

	result := ListPartsResult{}
	for i, r := range filtered {
		if i >= maxParts {
			result.IsTruncated = true
			result.NextPartNumberMarker = filtered[i-1].PartNumber
			break
		}
		result.Parts = append(result.Parts, PartInfo{PartNumber: r.PartNumber, Size: r.Size, ETag: r.ETag, LastModified: r.LastModified})
	}
	return result, nil
}
