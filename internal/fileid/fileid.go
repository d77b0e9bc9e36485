// Package fileid derives record ids for image files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Scheme names an id derivation.
type Scheme string

const (
	// SchemePath uses the cleaned file path as given (relative paths stay relative).
	SchemePath Scheme = "path"
	// SchemeHash uses the SHA-256 of the file contents, so identical images share one id.
	SchemeHash Scheme = "hash"
)

const hashPrefix = "sha256:"

// PathID returns the cleaned path. Same path always yields the same id.
func PathID(path string) string {
	return filepath.Clean(path)
}

// ContentID returns "sha256:<hex>" of the file contents.
func ContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Func returns the id function for scheme.
func Func(scheme Scheme) (func(path string) (string, error), error) {
	switch scheme {
	case SchemePath, "":
		return func(path string) (string, error) { return PathID(path), nil }, nil
	case SchemeHash:
		return ContentID, nil
	default:
		return nil, fmt.Errorf("unknown id scheme %q", scheme)
	}
}
