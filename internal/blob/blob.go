// Package blob holds helpers shared by the BlobStore implementations.
package blob

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Get for a key with no stored object.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned for keys that NewKey could not have produced.
	ErrInvalidKey = errors.New("invalid blob key")
)

var keyPattern = regexp.MustCompile(`^[0-9a-f]{32}(\.[a-z0-9]{1,5})?$`)

// NewKey returns a fresh random key: a dashless uuid v4 plus ext.
func NewKey(ext string) string {
	k := strings.ReplaceAll(uuid.New().String(), "-", "")
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return k
	}
	return k + "." + ext
}

// ValidKey reports whether key has the shape NewKey produces. Stores use it to
// reject path traversal and other client-controlled names.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// ContentTypeForKey maps a key extension back to the content type it was
// stored with.
func ContentTypeForKey(key string) string {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return "application/octet-stream"
	}
	switch key[i+1:] {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
