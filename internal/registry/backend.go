// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultLegacyHost is the public registry serving the v1 search API.
	DefaultLegacyHost = "registry.hub.docker.com"
	// DefaultHubHost is the public registry serving the Hub v2 API.
	DefaultHubHost = "store.docker.com"

	KindLegacy Kind = "legacy"
	KindHub    Kind = "hub"
	KindGCR    Kind = "gcr"

	// hubPageSize is the page_size requested from Hub v2 listings.
	hubPageSize = 100

	// maxPages bounds pagination to avoid runaway requests.
	maxPages = 100

	// maxJSONResponseBytes is the upper bound on a single registry response (10 MB).
	maxJSONResponseBytes = 10 << 20

	defaultTimeout = 30 * time.Second
)

type (
	// Kind names a backend wire protocol.
	Kind string

	// Backend lists the commands published under one namespace of one registry.
	Backend interface {
		// Kind returns the wire protocol spoken by the backend.
		Kind() Kind
		// List returns every repository of the namespace that has at least one tag.
		List(ctx context.Context) ([]CommandRecord, error)
		// Tags returns the tags of one repository, newest first.
		Tags(ctx context.Context, image string) ([]string, error)
	}

	// Option configures backends and resolvers.
	Option func(*options)

	options struct {
		httpClient  *http.Client
		logger      *slog.Logger
		keyFile     string
		tokenSource oauth2.TokenSource
		userAgent   string
	}

	// fetcher performs JSON GET requests against a registry.
	fetcher struct {
		client    *http.Client
		userAgent string
	}
)

// WithHTTPClient sets the HTTP client used for every registry call.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithKeyFile sets the service account key file used by token-authenticated
// registries. Without it ambient default credentials are used.
func WithKeyFile(path string) Option {
	return func(o *options) {
		o.keyFile = path
	}
}

// WithTokenSource bypasses credential discovery for token-authenticated registries.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = ts
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

func newOptions(opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		userAgent:  "cosh",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// getJSON fetches reqURL and decodes the JSON body into v.
func (f fetcher) getJSON(ctx context.Context, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return &RequestError{URL: reqURL, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &RequestError{URL: reqURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return &RequestError{URL: reqURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(v); err != nil {
		return &RequestError{URL: reqURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// collectRecords fetches tags for every name and drops names without tags.
func collectRecords(ctx context.Context, b Backend, host, namespace string, names []string) ([]CommandRecord, error) {
	records := make([]CommandRecord, 0, len(names))
	for _, n := range names {
		tags, err := b.Tags(ctx, n)
		if err != nil {
			return nil, err
		}
		if len(tags) == 0 {
			continue
		}
		records = append(records, CommandRecord{
			Name:           n,
			RepositoryHost: host,
			Namespace:      namespace,
			Tags:           tags,
		})
	}
	return records, nil
}
