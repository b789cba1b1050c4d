// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	gcrgoogle "github.com/google/go-containerregistry/pkg/v1/google"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// gcrScope is the OAuth scope requested for registry access.
const gcrScope = "https://www.googleapis.com/auth/devstorage.read_write"

// GCRBackend speaks the token-authenticated v2 tags/list API, where a
// namespace lists its repositories as "child" entries.
type GCRBackend struct {
	host        string
	namespace   string
	keyFile     string
	base        *http.Client
	tokenSource oauth2.TokenSource
	userAgent   string
	logger      *slog.Logger

	// rt carries the registry bearer token. It is built by the first call
	// and kept for the backend's lifetime.
	rt http.RoundTripper
}

// NewGCRBackend creates a token-authenticated backend for namespace on host.
func NewGCRBackend(host, namespace string, opts ...Option) *GCRBackend {
	o := newOptions(opts)
	return &GCRBackend{
		host:        host,
		namespace:   strings.Trim(namespace, "/"),
		keyFile:     o.keyFile,
		base:        o.httpClient,
		tokenSource: o.tokenSource,
		userAgent:   o.userAgent,
		logger:      o.logger,
	}
}

// Kind returns KindGCR.
func (b *GCRBackend) Kind() Kind { return KindGCR }

// List returns the child repositories of the namespace with their tags.
func (b *GCRBackend) List(ctx context.Context) ([]CommandRecord, error) {
	list, err := b.tagList(ctx, b.namespace)
	if err != nil {
		return nil, fmt.Errorf("listing repositories of %s/%s: %w", b.host, b.namespace, err)
	}

	b.logger.Debug("gcr registry listing", "host", b.host, "namespace", b.namespace, "repositories", len(list.Children))
	return collectRecords(ctx, b, b.host, b.namespace, list.Children)
}

// Tags returns the tags of namespace/image, newest first.
func (b *GCRBackend) Tags(ctx context.Context, image string) ([]string, error) {
	list, err := b.tagList(ctx, b.namespace+"/"+image)
	if err != nil {
		return nil, fmt.Errorf("listing tags of %s/%s: %w", b.namespace, image, err)
	}
	return SortTags(list.Tags), nil
}

func (b *GCRBackend) tagList(ctx context.Context, repository string) (*gcrgoogle.Tags, error) {
	listURL := fmt.Sprintf("https://%s/v2/%s/tags/list", b.host, repository)
	repo, err := name.NewRepository(b.host + "/" + repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRepository, err)
	}

	rt, err := b.transport(ctx)
	if err != nil {
		return nil, err
	}

	if b.base.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.base.Timeout)
		defer cancel()
	}
	list, err := gcrgoogle.List(repo, gcrgoogle.WithTransport(rt), gcrgoogle.WithContext(ctx))
	if err != nil {
		return nil, requestError(listURL, err)
	}
	return list, nil
}

// transport performs the registry token handshake once. The returned
// transport attaches "Authorization: Bearer <token>" to every request and is
// handed to the lister already wrapped, so no retry layer is added.
func (b *GCRBackend) transport(ctx context.Context) (http.RoundTripper, error) {
	if b.rt != nil {
		return b.rt, nil
	}
	namespace, err := name.NewRepository(b.host + "/" + b.namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRepository, err)
	}

	ts := b.tokenSource
	if ts == nil {
		creds, err := b.credentials(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		ts = creds.TokenSource
	}
	auth := gcrgoogle.NewTokenSourceAuthenticator(oauth2.ReuseTokenSource(nil, ts))

	base := b.base.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	scopes := []string{namespace.Scope(transport.PullScope)}
	rt, err := transport.NewWithContext(ctx, namespace.Registry, auth, transport.NewUserAgent(base, b.userAgent), scopes)
	if err != nil {
		return nil, requestError(fmt.Sprintf("https://%s/v2/", b.host), err)
	}
	b.rt = rt
	return rt, nil
}

func (b *GCRBackend) credentials(ctx context.Context) (*google.Credentials, error) {
	if b.keyFile != "" {
		b.logger.Debug("using registry key file", "path", b.keyFile)
		data, err := os.ReadFile(b.keyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading key file: %w", ErrCredentials, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, gcrScope)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing key file %s: %w", ErrCredentials, b.keyFile, err)
		}
		return creds, nil
	}

	b.logger.Debug("using default registry credentials")
	creds, err := google.FindDefaultCredentials(ctx, gcrScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	return creds, nil
}

// requestError converts a registry transport failure into a *RequestError,
// keeping the HTTP status when the registry answered.
func requestError(reqURL string, err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return &RequestError{URL: reqURL, StatusCode: terr.StatusCode, Err: err}
	}
	return &RequestError{URL: reqURL, Err: err}
}
