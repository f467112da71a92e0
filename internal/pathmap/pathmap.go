// Package pathmap maps bucket+key pairs onto filesystem paths under a data
// directory, rejecting traversal attempts before any file is touched.
package pathmap

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("invalid object key")

const maxSegmentBytes = 255

// ValidateKey reports whether key is an acceptable S3 object key: non-empty,
// free of NUL bytes, with no "." or ".." segment and no segment longer than
// 255 bytes.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.IndexByte(key, 0) >= 0 {
		return ErrInvalidKey
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "." || segment == ".." {
			return ErrInvalidKey
		}
		if len(segment) > maxSegmentBytes {
			return ErrInvalidKey
		}
	}
	return nil
}

// ObjectPath returns the on-disk path for bucket/key under root, after
// validating key. The caller is expected to have validated the bucket name
// separately (see s3.IsValidBucketName).
func ObjectPath(root, bucket, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	segments := append([]string{root, bucket}, strings.Split(key, "/")...)
	return filepath.Join(segments...), nil
}

// StagingDir returns the staging directory for in-progress writes in bucket.
func StagingDir(root, bucket string) string {
	return filepath.Join(root, bucket, ".staging")
}

// MultipartDir returns the directory holding part files for uploadID in bucket.
func MultipartDir(root, bucket, uploadID string) string {
	return filepath.Join(root, bucket, ".mpu", uploadID)
}

// BucketDir returns the bucket's root directory under root.
func BucketDir(root, bucket string) string {
	return filepath.Join(root, bucket)
}

// IsDescendant reports whether the cleaned, absolute path resolved is a
// strict descendant of base (also cleaned). Used as a
// defense-in-depth check after resolving symlinks on read paths.
func IsDescendant(base, resolved string) bool {
	baseClean := filepath.Clean(base)
	rel, err := filepath.Rel(baseClean, filepath.Clean(resolved))
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
