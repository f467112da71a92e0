package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckMetadataFilePermissionsWarnsOnBroadPermissions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "meta.db")
	if err := os.WriteFile(path, []byte("bolt"), 0o644); err != nil {
		t.Fatalf("write metadata file: %v", err)
	}

	warn, err := CheckMetadataFilePermissions(path)
	if err != nil {
		t.Fatalf("CheckMetadataFilePermissions error: %v", err)
	}
	if !strings.Contains(warn, "overly broad permissions") {
		t.Fatalf("expected warning for broad permissions, got %q", warn)
	}
}

func TestCheckMetadataFilePermissionsNoWarningForSecureMode(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "meta.db")
	if err := os.WriteFile(path, []byte("bolt"), 0o600); err != nil {
		t.Fatalf("write metadata file: %v", err)
	}

	warn, err := CheckMetadataFilePermissions(path)
	if err != nil {
		t.Fatalf("CheckMetadataFilePermissions error: %v", err)
	}
	if warn != "" {
		t.Fatalf("expected no warning, got %q", warn)
	}
}
