// Package docid derives stable document keys from KB-relative paths.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

const webPrefix = "web_"

// Normalize returns the canonical form of a KB-relative path: separators
// converted to "/" and redundant "." and ".." segments removed. Same document,
// same normalized path.
func Normalize(rel string) string {
	return path.Clean(strings.ReplaceAll(rel, "\\", "/"))
}

// Key returns a stable document key for the given KB-relative path.
// The key is the hex sha256 of the normalized path, so it is safe to use as a
// filename for persisted index artifacts.
func Key(rel string) string {
	hash := sha256.Sum256([]byte(Normalize(rel)))
	return hex.EncodeToString(hash[:])
}

// WebKey returns the document key for an embedded web page. Web documents
// live in a separate key space so a URL can never collide with a file path.
func WebKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return webPrefix + hex.EncodeToString(hash[:])
}
