package runtime

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckMetadataFilePermissions warns when the metadata database -- which
// holds credential secret keys alongside bucket and object metadata -- is
// readable by users other than its owner.
func CheckMetadataFilePermissions(path string) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("stat metadata file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("metadata file path %q is a directory", clean)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Sprintf("metadata file %q has overly broad permissions %o; recommended mode is 0600", clean, info.Mode().Perm()), nil
	}
	return "", nil
}
