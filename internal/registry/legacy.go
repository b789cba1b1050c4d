// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

type (
	// LegacyBackend speaks the v1 search API.
	LegacyBackend struct {
		host      string
		namespace string
		fetch     fetcher
		logger    *slog.Logger
	}

	legacySearchPage struct {
		NumPages int `json:"num_pages"`
		Page     int `json:"page"`
		Results  []struct {
			Name string `json:"name"`
		} `json:"results"`
	}

	legacyTag struct {
		Name string `json:"name"`
	}
)

// NewLegacyBackend creates a v1 search backend for namespace on host.
func NewLegacyBackend(host, namespace string, opts ...Option) *LegacyBackend {
	o := newOptions(opts)
	return &LegacyBackend{
		host:      host,
		namespace: strings.Trim(namespace, "/"),
		fetch:     fetcher{client: o.httpClient, userAgent: o.userAgent},
		logger:    o.logger,
	}
}

// Kind returns KindLegacy.
func (b *LegacyBackend) Kind() Kind { return KindLegacy }

// List pages through the search results for the namespace, keeps hits under
// "namespace/" and fetches their tags.
func (b *LegacyBackend) List(ctx context.Context) ([]CommandRecord, error) {
	base := fmt.Sprintf("https://%s/v1/search?q=%s", b.host, url.QueryEscape(b.namespace))
	prefix := b.namespace + "/"

	var names []string
	pageURL := base
	for range maxPages {
		var page legacySearchPage
		if err := b.fetch.getJSON(ctx, pageURL, &page); err != nil {
			return nil, fmt.Errorf("searching %s: %w", b.host, err)
		}
		for _, hit := range page.Results {
			if n, ok := strings.CutPrefix(hit.Name, prefix); ok && n != "" {
				names = append(names, n)
			}
		}
		if page.Page >= page.NumPages || len(page.Results) == 0 {
			break
		}
		pageURL = fmt.Sprintf("%s&page=%d", base, page.Page+1)
	}

	b.logger.Debug("legacy registry search", "host", b.host, "namespace", b.namespace, "repositories", len(names))

	host := b.host
	if host == DefaultLegacyHost {
		host = ""
	}
	return collectRecords(ctx, b, host, b.namespace, names)
}

// Tags returns the tags of namespace/image, newest first. Both the list form
// ([{"name": ...}]) and the map form ({"tag": "image id"}) are accepted.
func (b *LegacyBackend) Tags(ctx context.Context, image string) ([]string, error) {
	tagsURL := fmt.Sprintf("https://%s/v1/repositories/%s/%s/tags", b.host, b.namespace, image)

	var raw json.RawMessage
	if err := b.fetch.getJSON(ctx, tagsURL, &raw); err != nil {
		return nil, fmt.Errorf("listing tags of %s/%s: %w", b.namespace, image, err)
	}

	var list []legacyTag
	if err := json.Unmarshal(raw, &list); err == nil {
		tags := make([]string, 0, len(list))
		for _, t := range list {
			tags = append(tags, t.Name)
		}
		return SortTags(tags), nil
	}

	var byName map[string]string
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, &RequestError{URL: tagsURL, Err: fmt.Errorf("decoding tags: %w", err)}
	}
	tags := make([]string, 0, len(byName))
	for t := range byName {
		tags = append(tags, t)
	}
	return SortTags(tags), nil
}
