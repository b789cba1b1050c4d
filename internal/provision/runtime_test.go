// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
)

const fakeClient = "#!/bin/sh\necho docker client\n"

// buildArchive returns a tar.gz holding the given regular files.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "docker/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func serveArchive(t *testing.T, archive []byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/docker.tgz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRuntimeProvisioner_DownloadsVerifiesAndExtracts(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"docker/docker": fakeClient, "docker/dockerd": "daemon"})
	var hits atomic.Int32
	srv := serveArchive(t, archive, &hits)

	dir := t.TempDir()
	p := NewRuntimeProvisioner(dir, WithSource(srv.URL+"/docker.tgz", digest(archive)), WithHTTPClient(srv.Client()))

	got, err := p.Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision() unexpected error: %v", err)
	}
	if got != p.BinaryPath() {
		t.Errorf("Provision() = %q, want %q", got, p.BinaryPath())
	}

	content, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != fakeClient {
		t.Errorf("extracted binary = %q, want the docker/docker member", content)
	}
	info, err := os.Stat(got)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("binary mode = %v, want executable", info.Mode())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("runtime dir holds %d entries, want only the binary", len(entries))
	}

	if _, err := p.Provision(context.Background()); err != nil {
		t.Fatalf("second Provision() unexpected error: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("archive downloaded %d times, want 1", n)
	}
}

func TestRuntimeProvisioner_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"docker/docker": fakeClient})
	var hits atomic.Int32
	srv := serveArchive(t, archive, &hits)

	dir := t.TempDir()
	wrong := digest([]byte("something else"))
	p := NewRuntimeProvisioner(dir, WithSource(srv.URL+"/docker.tgz", wrong), WithHTTPClient(srv.Client()))

	_, err := p.Provision(context.Background())
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Provision() error = %v, want ErrChecksumMismatch", err)
	}
	var csErr *ChecksumError
	if !errors.As(err, &csErr) || csErr.Expected != wrong || csErr.Got != digest(archive) {
		t.Errorf("Provision() error = %#v", err)
	}

	if _, err := os.Stat(p.BinaryPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unverified binary installed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("runtime dir not cleaned up: %d entries left", len(entries))
	}
}

func TestRuntimeProvisioner_MissingMember(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"docker/dockerd": "daemon"})
	var hits atomic.Int32
	srv := serveArchive(t, archive, &hits)

	p := NewRuntimeProvisioner(t.TempDir(), WithSource(srv.URL+"/docker.tgz", digest(archive)), WithHTTPClient(srv.Client()))
	if _, err := p.Provision(context.Background()); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("Provision() error = %v, want ErrMemberNotFound", err)
	}
}

func TestRuntimeProvisioner_DownloadFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := serveArchive(t, nil, &hits)

	p := NewRuntimeProvisioner(t.TempDir(), WithSource(srv.URL+"/missing.tgz", DefaultRuntimeSHA256), WithHTTPClient(srv.Client()))
	if _, err := p.Provision(context.Background()); !errors.Is(err, ErrDownload) {
		t.Fatalf("Provision() error = %v, want ErrDownload", err)
	}
}

func TestRuntimeProvisioner_ExistingBinarySkipsDownload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewRuntimeProvisioner(dir, WithSource("http://127.0.0.1:1/unreachable.tgz", DefaultRuntimeSHA256))
	if err := os.WriteFile(p.BinaryPath(), []byte(fakeClient), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Provision(context.Background()); err != nil {
		t.Fatalf("Provision() with existing binary: %v", err)
	}
}
