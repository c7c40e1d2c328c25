// Package mediaid provides a deterministic media item ID from a file path.
package mediaid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "media:"

// MediaID returns a stable media item ID for the given absolute path.
// Same path always yields the same ID, so re-ingesting a file updates the
// same media item instead of creating a duplicate.
func MediaID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}
