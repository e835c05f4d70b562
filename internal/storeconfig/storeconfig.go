// Package storeconfig resolves the store root directory used by every other
// package in tuvix.
package storeconfig

import (
	"os"
	"path/filepath"
)

// Root is the directory under which the store, its helpers and the shared
// overlay mountpoint live. It defaults to $HOME/.tuvix and can be overridden
// with the TUVIX_STORE environment variable so that the store root is never
// hardcoded into a binary.
var Root = findRoot()

func findRoot() string {
	if env := os.Getenv("TUVIX_STORE"); env != "" {
		return env
	}
	return os.ExpandEnv("$HOME/.tuvix")
}

// StoreDir is STORE_ROOT/store, the directory containing one subdirectory per
// recipe fingerprint.
func StoreDir() string { return filepath.Join(Root, "store") }

// HelpersDir is STORE_ROOT/helpers, containing the bash/strace binaries
// copied into every sandbox and the mount-all/unmount-all helper scripts.
func HelpersDir() string { return filepath.Join(Root, "helpers") }

// MergedDir is STORE_ROOT/store/merged, the shared overlay mountpoint that
// the inner builder chroots into. Only one build is ever active against it
// at a time: recipe resolution is strictly sequential (see internal/resolve).
func MergedDir() string { return filepath.Join(StoreDir(), "merged") }

// CABundlePath is where a hermetic CA bundle may be placed to be used
// instead of the host's system trust store by the evaluation context's HTTP
// client. Absence falls back to the system pool.
func CABundlePath() string {
	if env := os.Getenv("TUVIX_CA_BUNDLE"); env != "" {
		return env
	}
	return filepath.Join(Root, "ca-bundle.pem")
}
