// Package fingerprint implements the stable naming of recipe outputs under
// the content-addressed store (spec component C1).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/tuvix/tuvix/internal/storeconfig"
)

// sentinelName is the zero-byte file whose presence marks a store directory
// as the result of a successful build.
const sentinelName = ".complete"

// Of returns the lowercase hex SHA-256 of the exact bytes of a recipe's
// source file. It is the sole input to the recipe's store path: identical
// source bytes always yield identical fingerprints.
func Of(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// StorePath returns STORE_ROOT/store/<fingerprint>. It does not create the
// directory.
func StorePath(fp string) string {
	return filepath.Join(storeconfig.StoreDir(), fp)
}

// IsComplete reports whether the sentinel file exists in dir.
func IsComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, sentinelName))
	return err == nil
}

// MarkComplete writes an empty sentinel file atomically (create-or-truncate;
// zero size is the contract). It must only be called after the inner
// builder has exited successfully and any mount teardown has succeeded.
func MarkComplete(dir string) error {
	return renameio.WriteFile(filepath.Join(dir, sentinelName), nil, 0o644)
}
