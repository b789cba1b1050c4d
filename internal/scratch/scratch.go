// SPDX-License-Identifier: MPL-2.0

// Package scratch lays out the shared working directory of cosh:
//
//	<base>/cosh/
//	  bin/       generated command wrappers
//	  cache/     registry listing cache
//	  docker/    extracted runtime binary
//	  locked     execution lock sentinel (or unlocked)
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName   = "cosh"
	binName   = "bin"
	cacheName = "cache"
	runtime   = "docker"
)

// Layout resolves the paths below one scratch directory.
type Layout struct {
	root     string
	cacheDir string
}

// New returns the layout rooted at <base>/cosh. A non-empty cacheDir
// replaces the default cache location.
func New(base, cacheDir string) Layout {
	return Layout{root: filepath.Join(base, dirName), cacheDir: cacheDir}
}

// Root returns the scratch directory; it also holds the lock sentinels.
func (l Layout) Root() string { return l.root }

// BinDir returns the wrapper directory.
func (l Layout) BinDir() string { return filepath.Join(l.root, binName) }

// CacheDir returns the cache directory.
func (l Layout) CacheDir() string {
	if l.cacheDir != "" {
		return l.cacheDir
	}
	return filepath.Join(l.root, cacheName)
}

// RuntimeDir returns the directory the runtime archive is extracted into.
func (l Layout) RuntimeDir() string { return filepath.Join(l.root, runtime) }

// Ensure creates the scratch, wrapper and cache directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.root, l.BinDir(), l.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating scratch directory %s: %w", dir, err)
		}
	}
	return nil
}
