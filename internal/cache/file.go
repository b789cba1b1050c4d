// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/i11/cosh/internal/clock"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 10 * time.Minute

const entryExt = ".json"

type (
	// FileCache keeps one JSON file per key under a directory.
	FileCache struct {
		dir    string
		ttl    time.Duration
		clock  clock.Clock
		logger *slog.Logger
	}

	// FileCacheOption configures a FileCache.
	FileCacheOption func(*FileCache)

	// entry is the on-disk format.
	entry struct {
		Owner     string          `json:"owner"`
		Result    json.RawMessage `json:"result"`
		Timestamp time.Time       `json:"timestamp"`
	}
)

// WithTTL sets how long entries stay valid.
func WithTTL(ttl time.Duration) FileCacheOption {
	return func(c *FileCache) {
		c.ttl = ttl
	}
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) FileCacheOption {
	return func(c *FileCache) {
		c.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FileCacheOption {
	return func(c *FileCache) {
		c.logger = l
	}
}

// NewFileCache creates a cache rooted at dir. The directory is created on first store.
func NewFileCache(dir string, opts ...FileCacheOption) *FileCache {
	c := &FileCache{
		dir:    dir,
		ttl:    DefaultTTL,
		clock:  clock.Real{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the logger set with WithLogger.
func (c *FileCache) Logger() *slog.Logger { return c.logger }

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// Path returns the file that holds the entry for key.
func (c *FileCache) Path(key Key) string {
	return filepath.Join(c.dir, url.PathEscape(key.Name())+entryExt)
}

// Lookup reads the entry for key. Missing, corrupt, expired and foreign-owner
// entries are all misses.
func (c *FileCache) Lookup(key Key) ([]byte, bool) {
	path := c.Path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("cache entry unreadable", "path", path, "error", err)
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Debug("cache entry corrupt", "path", path, "error", err)
		return nil, false
	}

	switch {
	case e.Owner != key.Owner:
		c.logger.Debug("cache entry owned by a different configuration", "path", path)
		return nil, false
	case c.clock.Since(e.Timestamp) > c.ttl:
		c.logger.Debug("cache entry expired", "path", path, "age", c.clock.Since(e.Timestamp))
		return nil, false
	case len(e.Result) == 0:
		return nil, false
	}
	return e.Result, true
}

// Store writes the entry to a temporary file in the cache directory, syncs
// it and renames it over the previous entry.
func (c *FileCache) Store(key Key, payload []byte) (err error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(entry{Owner: key.Owner, Result: payload, Timestamp: c.clock.Now()})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache entry: %w", err)
	}
	if err := os.Rename(tmpName, c.Path(key)); err != nil {
		return fmt.Errorf("replacing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *FileCache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("removing cache entry: %w", err)
		}
		removed++
	}
	return removed, nil
}
