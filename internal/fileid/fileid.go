// Package fileid derives stable profile IDs from the files profiles are imported from.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
)

const prefix = "profile:"

// ProfileID returns a stable user ID for the profile at position index of the
// file at path. Single-profile files use index 0. The path is cleaned first, so
// "/a/b.yaml" and "/a/./b.yaml" yield the same ID.
func ProfileID(path string, index int) string {
	key := filepath.Clean(path)
	if index > 0 {
		key += "#" + strconv.Itoa(index)
	}
	hash := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(hash[:12])
}

// IsDerived reports whether id was produced by ProfileID.
func IsDerived(id string) bool {
	return len(id) == len(prefix)+24 && id[:len(prefix)] == prefix
}
