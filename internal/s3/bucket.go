package s3

import (
	"net"
	"strings"
)

const (
	minBucketNameLength = 3
	maxBucketNameLength = 63
)

// IsValidBucketName reports whether name satisfies the DNS-compliant
// bucket-naming rules: 3-63 characters, lowercase letters/digits/dots/
// dashes only, no adjacent dots, no leading/trailing dot, not an IP
// literal, and every dot-separated label free of leading/trailing dashes.
func IsValidBucketName(name string) bool {
	if len(name) < minBucketNameLength || len(name) > maxBucketNameLength {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	if !bucketCharsetOnly(name) {
		return false
	}
	if net.ParseIP(name) != nil {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if !isValidBucketLabel(label) {
			return false
		}
	}
	return true
}

func bucketCharsetOnly(name string) bool {
	for _, r := range name {
		if !isBucketNameRune(r) && r != '.' {
			return false
		}
	}
	return true
}

func isBucketNameRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || r == '-'
}

func isValidBucketLabel(label string) bool {
	if label == "" {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	for _, r := range label {
		if !isBucketNameRune(r) {
			return false
		}
	}
	return true
}
