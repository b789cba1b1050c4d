// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type (
	// HubBackend speaks the Hub v2 repositories API.
	HubBackend struct {
		host      string
		namespace string
		fetch     fetcher
		logger    *slog.Logger
	}

	hubPage struct {
		Next    *string `json:"next"`
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
	}
)

// NewHubBackend creates a Hub v2 backend for namespace on host.
func NewHubBackend(host, namespace string, opts ...Option) *HubBackend {
	o := newOptions(opts)
	return &HubBackend{
		host:      host,
		namespace: strings.Trim(namespace, "/"),
		fetch:     fetcher{client: o.httpClient, userAgent: o.userAgent},
		logger:    o.logger,
	}
}

// Kind returns KindHub.
func (b *HubBackend) Kind() Kind { return KindHub }

// List returns every repository of the namespace with its tags.
func (b *HubBackend) List(ctx context.Context) ([]CommandRecord, error) {
	listURL := fmt.Sprintf("https://%s/v2/repositories/%s/?page_size=%d", b.host, b.namespace, hubPageSize)
	names, err := b.paged(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("listing repositories of %s: %w", b.namespace, err)
	}

	b.logger.Debug("hub registry listing", "host", b.host, "namespace", b.namespace, "repositories", len(names))

	host := b.host
	if host == DefaultHubHost {
		host = ""
	}
	return collectRecords(ctx, b, host, b.namespace, names)
}

// Tags returns the tags of namespace/image, newest first.
func (b *HubBackend) Tags(ctx context.Context, image string) ([]string, error) {
	tagsURL := fmt.Sprintf("https://%s/v2/repositories/%s/%s/tags/?page_size=%d", b.host, b.namespace, image, hubPageSize)
	tags, err := b.paged(ctx, tagsURL)
	if err != nil {
		return nil, fmt.Errorf("listing tags of %s/%s: %w", b.namespace, image, err)
	}
	return SortTags(tags), nil
}

// paged follows "next" links and collects the result names of every page.
func (b *HubBackend) paged(ctx context.Context, pageURL string) ([]string, error) {
	var names []string
	for page := 0; page < maxPages && pageURL != ""; page++ {
		var p hubPage
		if err := b.fetch.getJSON(ctx, pageURL, &p); err != nil {
			return nil, err
		}
		for _, r := range p.Results {
			names = append(names, r.Name)
		}
		pageURL = ""
		if p.Next != nil {
			pageURL = *p.Next
		}
	}
	return names, nil
}
