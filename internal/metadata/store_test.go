package metadata

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	if _, err := store.Get("bucket/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put("bucket/b1", []byte("rec")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, err := store.Get("bucket/b1")
	if err != nil || string(got) != "rec" {
		t.Fatalf("unexpected Get result: %q err=%v", got, err)
	}

	if err := store.Delete("bucket/b1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if ok, err := store.Has("bucket/b1"); err != nil || ok {
		t.Fatalf("expected key gone, has=%v err=%v", ok, err)
	}
}

func TestScanPrefixOrdering(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	keys := []string{
		"mpu-part/up1/00000001",
		"mpu-part/up1/00000002",
		"mpu-part/up1/00000010",
		"mpu/up2",
	}
	for _, k := range keys {
		if err := store.Put(k, []byte("v")); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}

	entries, more, err := store.ScanPrefix("mpu-part/up1/", "", 0)
	if err != nil {
		t.Fatalf("ScanPrefix error: %v", err)
	}
	if more {
		t.Fatalf("unexpected more=true with no limit")
	}
	want := []string{"mpu-part/up1/00000001", "mpu-part/up1/00000002", "mpu-part/up1/00000010"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Key != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Key, want[i])
		}
	}
}

func TestScanPrefixLimitAndStartAfter(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	for _, k := range []string{"obj/b/a", "obj/b/b", "obj/b/c", "obj/b/d"} {
		if err := store.Put(k, []byte("v")); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}

	entries, more, err := store.ScanPrefix("obj/b/", "", 2)
	if err != nil {
		t.Fatalf("ScanPrefix error: %v", err)
	}
	if !more {
		t.Fatalf("expected more=true")
	}
	if len(entries) != 2 || entries[0].Key != "obj/b/a" || entries[1].Key != "obj/b/b" {
		t.Fatalf("unexpected page: %+v", entries)
	}

	rest, more, err := store.ScanPrefix("obj/b/", entries[len(entries)-1].Key, 0)
	if err != nil {
		t.Fatalf("ScanPrefix error: %v", err)
	}
	if more {
		t.Fatalf("unexpected more=true on final page")
	}
	if len(rest) != 2 || rest[0].Key != "obj/b/c" || rest[1].Key != "obj/b/d" {
		t.Fatalf("unexpected remainder: %+v", rest)
	}
}

func TestCountPrefix(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	for _, k := range []string{"obj/b/a", "obj/b/b", "obj/c/a"} {
		if err := store.Put(k, []byte("v")); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}

	n, err := store.CountPrefix("obj/b/", 0)
	if err != nil || n != 2 {
		t.Fatalf("CountPrefix = %d, %v; want 2, nil", n, err)
	}
}

func TestUpdateTransactionAtomicity(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	err := store.Update(func(tx *Tx) error {
		if err := tx.Put("mpu/up1", []byte("hdr")); err != nil {
			return err
		}
		return tx.Put("mpu-part/up1/00000001", []byte("part"))
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	if _, err := store.Get("mpu/up1"); err != nil {
		t.Fatalf("expected mpu/up1 to exist: %v", err)
	}
	if _, err := store.Get("mpu-part/up1/00000001"); err != nil {
		t.Fatalf("expected part to exist: %v", err)
	}
}
