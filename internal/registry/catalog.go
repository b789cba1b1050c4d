// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"log/slog"

	"github.com/i11/cosh/internal/cache"
)

// listMethod keys cached repository listings.
const listMethod = "registry.Resolver.List"

type (
	// Catalog merges the commands of several repositories. On a name
	// collision the earliest configured repository wins.
	Catalog struct {
		resolvers []*Resolver
		cache     cache.Cache
		excluded  map[string]struct{}
		logger    *slog.Logger
	}

	// CatalogOption configures a Catalog.
	CatalogOption func(*Catalog)
)

// WithExcluded hides command names from the catalog.
func WithExcluded(names ...string) CatalogOption {
	return func(c *Catalog) {
		for _, n := range names {
			c.excluded[n] = struct{}{}
		}
	}
}

// WithCatalogLogger sets the logger.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = l
	}
}

// NewCatalog creates a catalog over resolvers in precedence order.
func NewCatalog(resolvers []*Resolver, c cache.Cache, opts ...CatalogOption) *Catalog {
	cat := &Catalog{
		resolvers: resolvers,
		cache:     c,
		excluded:  make(map[string]struct{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cat)
	}
	return cat
}

// Commands returns the merged command records in repository order.
func (c *Catalog) Commands(ctx context.Context) ([]CommandRecord, error) {
	seen := make(map[string]struct{})
	var merged []CommandRecord

	for _, r := range c.resolvers {
		records, err := cache.Load(ctx, c.cache, r, listMethod, r.List, r.Repository().String())
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if _, skip := c.excluded[rec.Name]; skip {
				continue
			}
			if _, dup := seen[rec.Name]; dup {
				c.logger.Debug("command shadowed by earlier repository", "command", rec.Name, "repository", r.Repository().String())
				continue
			}
			seen[rec.Name] = struct{}{}
			merged = append(merged, rec)
		}
	}
	return merged, nil
}

// Lookup returns the record named name.
func (c *Catalog) Lookup(ctx context.Context, name string) (CommandRecord, bool, error) {
	records, err := c.Commands(ctx)
	if err != nil {
		return CommandRecord{}, false, err
	}
	for _, rec := range records {
		if rec.Name == name {
			return rec, true, nil
		}
	}
	return CommandRecord{}, false, nil
}
