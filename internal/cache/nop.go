// SPDX-License-Identifier: MPL-2.0

package cache

import "log/slog"

// NoCache never stores anything, so every Load calls through.
type NoCache struct {
	// Log is used by Load; nil means slog.Default().
	Log *slog.Logger
}

// Lookup always misses.
func (NoCache) Lookup(Key) ([]byte, bool) { return nil, false }

// Store discards the payload.
func (NoCache) Store(Key, []byte) error { return nil }

// Logger returns Log, or the default logger when unset.
func (n NoCache) Logger() *slog.Logger {
	if n.Log == nil {
		return slog.Default()
	}
	return n.Log
}
