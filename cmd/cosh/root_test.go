// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/i11/cosh/internal/config"
	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/dispatch"
	"github.com/i11/cosh/internal/issue"
	"github.com/i11/cosh/internal/lock"
	"github.com/i11/cosh/internal/provision"
	"github.com/i11/cosh/internal/registry"
)

// ansiSequence matches SGR escapes emitted when the test runs on a terminal.
var ansiSequence = regexp.MustCompile("\x1b\\[[0-9;]*m")

type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	return &cfg, nil
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: mutates package-level Version/Commit/BuildDate vars.
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	Version, Commit, BuildDate = "v1.2.3", "abc1234", "2026-01-02T03:04:05Z"
	if got, want := getVersionString(), "v1.2.3 (commit: abc1234, built: 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}

	Version = "dev"
	if got, want := getVersionString(), "dev (built from source)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitOK},
		{name: "container exit code", err: &ExitError{Code: 42}, want: 42},
		{name: "busy", err: fmt.Errorf("provisioning: %w", &lock.BusyError{Path: "/tmp/cosh/locked"}), want: ExitBusy},
		{name: "corrupt lock", err: lock.ErrCorrupt, want: ExitFailure},
		{name: "not found", err: fmt.Errorf("%w: nope", dispatch.ErrCommandNotFound), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{name: "config", err: fmt.Errorf("%w: bad", errConfigLoad), want: issue.ConfigLoadFailedId},
		{name: "repository", err: fmt.Errorf("%w: /", registry.ErrMalformedRepository), want: issue.MalformedRepositoryId},
		{name: "not found", err: fmt.Errorf("%w: x", dispatch.ErrCommandNotFound), want: issue.CommandNotFoundId},
		{name: "no version", err: dispatch.ErrNoVersion, want: issue.NoVersionId},
		{name: "network", err: &registry.RequestError{URL: "https://x/v1/", StatusCode: 503}, want: issue.RegistryUnreachableId},
		{name: "credentials", err: registry.ErrCredentials, want: issue.CredentialsId},
		{name: "checksum", err: &provision.ChecksumError{Filename: "docker.tgz"}, want: issue.ChecksumMismatchId},
		{name: "download", err: provision.ErrDownload, want: issue.RuntimeDownloadFailedId},
		{name: "busy", err: &lock.BusyError{}, want: issue.MutexBusyId},
		{name: "corrupt", err: lock.ErrCorrupt, want: issue.MutexCorruptId},
		{name: "engine", err: &container.EngineNotAvailableError{Engine: container.EngineTypeDocker}, want: issue.ContainerEngineNotFoundId},
		{name: "volume", err: container.ErrInvalidMount, want: issue.InvalidVolumeId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := classifyError(tt.err)
			if !ok || got != tt.want {
				t.Errorf("classifyError(%v) = %d, %v; want %d", tt.err, got, ok, tt.want)
			}
			if issue.Get(got) == nil {
				t.Errorf("issue %d is not in the catalog", got)
			}
		})
	}

	if _, ok := classifyError(errors.New("something else")); ok {
		t.Error("classifyError(unknown) reported a catalog entry")
	}
}

func TestApp_LoadConfigAppliesFlags(t *testing.T) {
	t.Parallel()

	base := config.DefaultConfig()
	base.Volumes = []string{"/a:/a"}
	base.Env = []string{"A=1"}
	app := NewApp(Dependencies{Config: staticConfig{cfg: base}})

	cfg, err := app.loadConfig(t.Context(), &rootFlags{
		noCache:      true,
		gcrKeyFile:   "/keys/sa.json",
		engine:       "podman",
		repositories: []string{"gcr.io/acme/tools"},
		volumes:      []string{"/b:/b:ro"},
		env:          []string{"B"},
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if !slices.Equal(cfg.Repositories, []string{"gcr.io/acme/tools"}) {
		t.Errorf("Repositories = %v", cfg.Repositories)
	}
	if cfg.GCRKeyFile != "/keys/sa.json" || cfg.ContainerEngine != container.EngineTypePodman || cfg.Cache.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
	if !slices.Equal(cfg.Volumes, []string{"/a:/a", "/b:/b:ro"}) {
		t.Errorf("Volumes = %v, want config then flags", cfg.Volumes)
	}
	if !slices.Equal(cfg.Env, []string{"A=1", "B"}) {
		t.Errorf("Env = %v, want config then flags", cfg.Env)
	}
}

func TestApp_ReportRendersAndRecordsExitCode(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	app := NewApp(Dependencies{Stderr: &stderr})

	busy := issue.NewErrorContext().
		WithOperation("provision commands").
		WithSuggestion("Retry in a moment").
		Wrap(&lock.BusyError{Path: "/tmp/cosh/locked"}).
		BuildError()
	if err := app.report(busy, false); err != nil {
		t.Fatalf("report() = %v, want nil", err)
	}
	if app.exitCode != ExitBusy {
		t.Errorf("exitCode = %d, want %d", app.exitCode, ExitBusy)
	}
	out := stderr.String()
	if !strings.Contains(out, "failed to provision commands") || !strings.Contains(out, "Retry in a moment") {
		t.Errorf("stderr = %q", out)
	}

	// A container exit code is passed through silently.
	stderr.Reset()
	_ = app.report(&ExitError{Code: 3}, true)
	if app.exitCode != 3 || stderr.Len() != 0 {
		t.Errorf("exitCode = %d, stderr = %q; want 3 and no output", app.exitCode, stderr.String())
	}
}

func TestApp_ReportVerboseIncludesIssue(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	app := NewApp(Dependencies{Stderr: &stderr})

	_ = app.report(fmt.Errorf("%w: nope", dispatch.ErrCommandNotFound), true)
	if app.exitCode != ExitFailure {
		t.Errorf("exitCode = %d, want %d", app.exitCode, ExitFailure)
	}
	if !strings.Contains(stderr.String(), "cosh self list") {
		t.Errorf("verbose output lacks the catalog explanation:\n%s", stderr.String())
	}
}

func TestWriteCommandTable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	writeCommandTable(&out, []registry.CommandRecord{
		{Name: "build", RepositoryHost: "gcr.io", Namespace: "acme", Tags: []string{"1.2", "1.0"}},
		{Name: "terraform", Namespace: "actions", Tags: []string{"latest", "1.5.7"}},
	})

	plain := ansiSequence.ReplaceAllString(out.String(), "")
	lines := strings.Split(strings.TrimRight(plain, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), plain)
	}
	want := []string{
		"COMMAND    VERSION  IMAGE",
		"build      1.2      gcr.io/acme/build",
		"terraform  latest   actions/terraform",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
