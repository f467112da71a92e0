package multipart

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"simples3/internal/metadata"
	"simples3/internal/objectstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	meta, err := metadata.Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })
	objects, err := objectstore.New(filepath.Join(dir, "data"), 0, meta)
	if err != nil {
		t.Fatalf("new objectstore: %v", err)
	}
	return New(filepath.Join(dir, "mpu"), meta, objects)
}

func TestUploadLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	uploadID, err := s.Create(ctx, "b", "obj.txt", "text/plain", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if uploadID == "" {
		t.Fatal("expected non-empty upload id")
	}

	part1Body := bytes.Repeat([]byte("a"), minPartSize)
	part1, err := s.UploadPart(ctx, "b", "obj.txt", uploadID, 1, bytes.NewReader(part1Body), 0, "")
	if err != nil {
		t.Fatalf("upload part 1: %v", err)
	}
	part2, err := s.UploadPart(ctx, "b", "obj.txt", uploadID, 2, bytes.NewBufferString("world"), 0, "")
	if err != nil {
		t.Fatalf("upload part 2: %v", err)
	}

	listed, err := s.ListParts(ctx, "b", "obj.txt", uploadID, ListPartsOptions{})
	if err != nil {
		t.Fatalf("list parts: %v", err)
	}
	if len(listed.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(listed.Parts))
	}

	info, err := s.Complete(ctx, "b", "obj.txt", uploadID, []CompletedPart{
		{PartNumber: 1, ETag: part1.ETag},
		{PartNumber: 2, ETag: part2.ETag},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if info.Size != int64(len(part1Body)+len("world")) {
		t.Fatalf("size = %d, want %d", info.Size, len(part1Body)+len("world"))
	}
	if _, err := s.loadManifest("b", uploadID); err != ErrNoSuchUpload {
		t.Fatalf("manifest should be gone after complete, got: %v", err)
	}
}

func TestCompleteRejectsOutOfOrderParts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	uploadID, _ := s.Create(ctx, "b", "obj.txt", "", nil)
	p1, _ := s.UploadPart(ctx, "b", "obj.txt", uploadID, 1, bytes.NewBufferString("a"), 0, "")
	p2, _ := s.UploadPart(ctx, "b", "obj.txt", uploadID, 2, bytes.NewBufferString("b"), 0, "")

	_, err := s.Complete(ctx, "b", "obj.txt", uploadID, []CompletedPart{
		{PartNumber: 2, ETag: p2.ETag},
		{PartNumber: 1, ETag: p1.ETag},
	})
	if err != ErrInvalidPartOrder {
		t.Fatalf("err = %v, want ErrInvalidPartOrder", err)
	}
}

func TestCompleteRejectsUndersizedNonFinalPart(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	uploadID, _ := s.Create(ctx, "b", "obj.txt", "", nil)
	p1, _ := s.UploadPart(ctx, "b", "obj.txt", uploadID, 1, bytes.NewBufferString("tiny"), 0, "")
	p2, _ := s.UploadPart(ctx, "b", "obj.txt", uploadID, 2, bytes.NewBufferString("also tiny"), 0, "")

	_, err := s.Complete(ctx, "b", "obj.txt", uploadID, []CompletedPart{
		{PartNumber: 1, ETag: p1.ETag},
		{PartNumber: 2, ETag: p2.ETag},
	})
	if err != ErrEntityTooSmall {
		t.Fatalf("err = %v, want ErrEntityTooSmall", err)
	}
}

func TestAbortIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	uploadID, _ := s.Create(ctx, "b", "obj.txt", "", nil)
	if _, err := s.UploadPart(ctx, "b", "obj.txt", uploadID, 1, bytes.NewBufferString("x"), 0, ""); err != nil {
		t.Fatalf("upload part: %v", err)
	}
	if err := s.Abort(ctx, "b", "obj.txt", uploadID); err != nil {
		t.Fatalf("first abort: %v", err)
	}
	if err := s.Abort(ctx, "b", "obj.txt", uploadID); err != nil {
		t.Fatalf("second abort should be a no-op, got: %v", err)
	}
	if _, err := s.ListParts(ctx, "b", "obj.txt", uploadID, ListPartsOptions{}); err != ErrNoSuchUpload {
		t.Fatalf("list parts after abort err = %v, want ErrNoSuchUpload", err)
	}
}

func TestUploadPartRejectsMismatchedContentMD5(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	uploadID, _ := s.Create(ctx, "b", "obj.txt", "", nil)

	_, err := s.UploadPart(ctx, "b", "obj.txt", uploadID, 1, bytes.NewBufferString("payload"), 0, "bm90LWEtdmFsaWQtZGlnZXN0")
	if !errors.Is(err, objectstore.ErrBadDigest) {
		t.Fatalf("err = %v, want ErrBadDigest", err)
	}
	if _, err := s.ListParts(ctx, "b", "obj.txt", uploadID, ListPartsOptions{}); err != nil {
		t.Fatalf("list parts: %v", err)
	}
}

func TestListUploadsFiltersByPrefix(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, "b", "logs/a.txt", "", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, "b", "other.txt", "", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := s.ListUploads(ctx, "b", ListUploadsOptions{Prefix: "logs/"})
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(result.Uploads) != 1 || result.Uploads[0].Key != "logs/a.txt" {
		t.Fatalf("uploads = %+v", result.Uploads)
	}
}

func TestRunSweepsStaleUploadsPeriodically(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	uploadID, err := s.Create(ctx, "b", "obj.txt", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stop := s.Run(ctx, 50*time.Millisecond, 10*time.Millisecond, nil)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.loadManifest("b", uploadID); err == ErrNoSuchUpload {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected upload to be swept within deadline")
}

func TestRunDisabledByNonPositiveInterval(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	stop := s.Run(context.Background(), 0, time.Hour, nil)
	stop()
}

func TestSweepRemovesStaleUploads(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	uploadID, err := s.Create(ctx, "b", "obj.txt", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := s.Sweep(ctx, time.Now().Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.UploadsRemoved != 1 {
		t.Fatalf("uploads removed = %d, want 1", result.UploadsRemoved)
	}
	if _, err := s.loadManifest("b", uploadID); err != ErrNoSuchUpload {
		t.Fatalf("manifest should be gone after sweep, got: %v", err)
	}
}
