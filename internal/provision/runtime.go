// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
)

const (
	// DefaultRuntimeURL is the pinned static docker client archive.
	DefaultRuntimeURL = "https://download.docker.com/linux/static/stable/x86_64/docker-18.06.0-ce.tgz"
	// DefaultRuntimeSHA256 is the digest of DefaultRuntimeURL.
	DefaultRuntimeSHA256 = "1c2fa625496465c68b856db0ba850eaad7a16221ca153661ca718de4a2217705"
	// DefaultRuntimeMember is the archive entry holding the client binary.
	DefaultRuntimeMember = "docker/docker"

	// maxArchiveBytes bounds the download (1 GB).
	maxArchiveBytes = 1 << 30
	// maxBinaryBytes bounds the extracted binary (500 MB).
	maxBinaryBytes = 500 << 20

	downloadTimeout = 10 * time.Minute
)

var (
	// ErrDownload is returned when the runtime archive cannot be fetched.
	ErrDownload = errors.New("runtime download failed")

	// ErrMemberNotFound is returned when the archive lacks the configured member.
	ErrMemberNotFound = errors.New("runtime binary not found in archive")
)

type (
	// RuntimeProvisioner installs the runtime client binary into a directory.
	RuntimeProvisioner struct {
		dir    string
		url    string
		sha256 string
		member string
		client *http.Client
		logger *slog.Logger
	}

	// RuntimeOption configures a RuntimeProvisioner.
	RuntimeOption func(*RuntimeProvisioner)
)

// WithSource overrides the archive URL and its expected SHA256 digest.
func WithSource(url, sha256 string) RuntimeOption {
	return func(p *RuntimeProvisioner) {
		p.url = url
		p.sha256 = sha256
	}
}

// WithMember overrides the archive entry that holds the binary.
func WithMember(member string) RuntimeOption {
	return func(p *RuntimeProvisioner) {
		p.member = member
	}
}

// WithHTTPClient sets the client used for the download.
func WithHTTPClient(c *http.Client) RuntimeOption {
	return func(p *RuntimeProvisioner) {
		p.client = c
	}
}

// WithRuntimeLogger sets the logger.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(p *RuntimeProvisioner) {
		p.logger = l
	}
}

// NewRuntimeProvisioner installs into dir, normally the scratch runtime directory.
func NewRuntimeProvisioner(dir string, opts ...RuntimeOption) *RuntimeProvisioner {
	p := &RuntimeProvisioner{
		dir:    dir,
		url:    DefaultRuntimeURL,
		sha256: DefaultRuntimeSHA256,
		member: DefaultRuntimeMember,
		client: &http.Client{Timeout: downloadTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BinaryPath returns where the binary is installed.
func (p *RuntimeProvisioner) BinaryPath() string {
	return filepath.Join(p.dir, path.Base(p.member))
}

// Provision installs the binary unless it already exists and returns its path.
// Nothing is installed when the digest does not match.
func (p *RuntimeProvisioner) Provision(ctx context.Context) (string, error) {
	target := p.BinaryPath()
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		p.logger.Debug("runtime binary already provisioned", "path", target)
		return target, nil
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating runtime directory: %w", err)
	}

	p.logger.Info("downloading container runtime", "url", p.url)
	archive, err := p.download(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(archive) }()

	if err := VerifyFile(archive, p.sha256); err != nil {
		return "", err
	}

	tmp, err := extractMember(archive, p.member, p.dir)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("installing runtime binary: %w", err)
	}

	p.logger.Debug("runtime binary provisioned", "path", target)
	return target, nil
}

// download writes the archive to a temp file in the runtime directory.
func (p *RuntimeProvisioner) download(ctx context.Context) (_ string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: unexpected status %d", ErrDownload, p.url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(p.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxArchiveBytes)); err != nil {
		return "", fmt.Errorf("%w: writing archive: %w", ErrDownload, err)
	}
	return tmp.Name(), nil
}

// extractMember copies the archive entry named member into an executable
// temp file in dir.
func extractMember(archivePath, member, dir string) (_ string, err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	want := path.Clean(member)
	tr := tar.NewReader(gz)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return "", fmt.Errorf("reading tar entry: %w", nextErr)
		}
		if hdr.Typeflag != tar.TypeReg || path.Clean(hdr.Name) != want {
			continue
		}
		return writeExecutable(dir, io.LimitReader(tr, maxBinaryBytes))
	}
	return "", fmt.Errorf("%w: %s", ErrMemberNotFound, member)
}

func writeExecutable(dir string, r io.Reader) (_ string, err error) {
	tmp, err := os.CreateTemp(dir, ".runtime-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file for binary: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("extracting binary: %w", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		return "", fmt.Errorf("making binary executable: %w", err)
	}
	return tmp.Name(), nil
}
