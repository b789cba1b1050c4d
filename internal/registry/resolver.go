// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// domainPattern matches a host made of two or more DNS labels ending in an
// alphabetic TLD, with an optional port.
var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,63}(:[0-9]{1,5})?$`)

type (
	// Repository is a parsed repository string. Host is empty for the default
	// public registry.
	Repository struct {
		Host      string
		Namespace string
	}

	// Resolver selects the backend for one configured repository string.
	// The selection happens once and is reused for the resolver's lifetime.
	Resolver struct {
		raw     string
		repo    Repository
		opts    []Option
		o       options
		backend Backend
	}
)

// ParseRepository splits raw on its first "/" into host and namespace. When
// the left part does not look like a domain, the whole string is a namespace
// on the default public registry.
func ParseRepository(raw string) (Repository, error) {
	s := strings.Trim(strings.TrimSpace(raw), "/")
	if s == "" {
		return Repository{}, fmt.Errorf("%w %q: no namespace", ErrMalformedRepository, raw)
	}

	left, rest, found := strings.Cut(s, "/")
	if !isDomain(left) {
		return Repository{Namespace: s}, nil
	}
	if !found || strings.Trim(rest, "/") == "" {
		return Repository{}, fmt.Errorf("%w %q: host %s has no namespace", ErrMalformedRepository, raw, left)
	}
	return Repository{Host: left, Namespace: rest}, nil
}

// String returns "host/namespace" or "namespace".
func (r Repository) String() string {
	if r.Host == "" {
		return r.Namespace
	}
	return r.Host + "/" + r.Namespace
}

func isDomain(s string) bool {
	return len(s) >= 4 && len(s) <= 253 && domainPattern.MatchString(s)
}

// NewResolver parses raw and returns a resolver for it.
func NewResolver(raw string, opts ...Option) (*Resolver, error) {
	repo, err := ParseRepository(raw)
	if err != nil {
		return nil, err
	}
	return &Resolver{raw: raw, repo: repo, opts: opts, o: newOptions(opts)}, nil
}

// Repository returns the parsed repository.
func (r *Resolver) Repository() Repository { return r.repo }

// CacheIdentity identifies the resolver configuration. Cached results
// produced by a differently configured resolver are not reused.
func (r *Resolver) CacheIdentity() string {
	return fmt.Sprintf("registry.Resolver{repository=%s,key_file=%s}", r.repo, r.o.keyFile)
}

// Backend returns the backend for the repository, selecting it on first use:
//  1. no host: Hub v2 on the default public registry
//  2. host ending in gcr.io: token-authenticated backend
//  3. host answering GET /v1: legacy v1 search backend
//  4. otherwise: Hub v2 on that host
func (r *Resolver) Backend(ctx context.Context) (Backend, error) {
	if r.backend != nil {
		return r.backend, nil
	}

	switch {
	case r.repo.Host == "":
		r.backend = NewHubBackend(DefaultHubHost, r.repo.Namespace, r.opts...)
	case strings.HasSuffix(r.repo.Host, "gcr.io"):
		r.backend = NewGCRBackend(r.repo.Host, r.repo.Namespace, r.opts...)
	case r.probeLegacy(ctx):
		r.backend = NewLegacyBackend(r.repo.Host, r.repo.Namespace, r.opts...)
	default:
		r.backend = NewHubBackend(r.repo.Host, r.repo.Namespace, r.opts...)
	}

	r.o.logger.Debug("selected registry backend", "repository", r.repo.String(), "kind", r.backend.Kind())
	return r.backend, nil
}

// List lists the commands of the repository through its backend.
func (r *Resolver) List(ctx context.Context) ([]CommandRecord, error) {
	b, err := r.Backend(ctx)
	if err != nil {
		return nil, err
	}
	return b.List(ctx)
}

// probeLegacy reports whether the host answers the v1 endpoint successfully.
func (r *Resolver) probeLegacy(ctx context.Context) bool {
	probeURL := fmt.Sprintf("https://%s/v1/", r.repo.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", r.o.userAgent)

	resp, err := r.o.httpClient.Do(req)
	if err != nil {
		r.o.logger.Debug("legacy registry probe failed", "url", probeURL, "error", err)
		return false
	}
	_ = resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
