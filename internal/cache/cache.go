// SPDX-License-Identifier: MPL-2.0

// Package cache memoizes expensive calls (registry listings) on disk.
//
// An entry is reused only while it is younger than the TTL and was produced
// by an owner with the same identity as the caller. Anything else, including
// an unreadable or undecodable entry, is a miss and the call is re-run.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

type (
	// Owner is the object whose method is memoized. Its identity captures the
	// configuration that influences the result.
	Owner interface {
		CacheIdentity() string
	}

	// Key identifies one memoized call.
	Key struct {
		// Method is the fully qualified method name, e.g. "registry.Resolver.List".
		Method string
		// Args are the call arguments in order.
		Args []string
		// Owner is the caller's Owner identity.
		Owner string
	}

	// Cache stores serialized results.
	Cache interface {
		// Lookup returns the payload stored for key when it is still valid.
		Lookup(key Key) ([]byte, bool)
		// Store persists payload for key, replacing any previous entry.
		Store(key Key, payload []byte) error
		// Logger receives the hit, miss and persistence messages of Load.
		Logger() *slog.Logger
	}
)

// Name returns the stable entry name for the key, derived from the method and arguments.
func (k Key) Name() string {
	if len(k.Args) == 0 {
		return k.Method
	}
	return k.Method + "_" + strings.Join(k.Args, "_")
}

// Load returns the memoized result of call, invoking it when c has no valid
// entry. Callers cannot tell whether the value was cached. Failing to persist
// a fresh result is logged, not returned.
func Load[T any](ctx context.Context, c Cache, owner Owner, method string, call func(context.Context) (T, error), args ...string) (T, error) {
	key := Key{Method: method, Args: args, Owner: owner.CacheIdentity()}
	logger := c.Logger().With("cache_key", key.Name())

	if payload, ok := c.Lookup(key); ok {
		var cached T
		if err := json.Unmarshal(payload, &cached); err == nil {
			logger.Debug("cache hit")
			return cached, nil
		}
		logger.Debug("discarding undecodable cache entry")
	}

	result, err := call(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn("cannot encode result for cache", "error", err)
		return result, nil
	}
	if err := c.Store(key, payload); err != nil {
		logger.Warn("cannot persist cache entry", "error", err)
	}
	return result, nil
}
