// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/i11/cosh/internal/config"
	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/hostenv"

	"github.com/charmbracelet/log"
)

type (
	// App wires CLI services and shared dependencies. Cobra handlers receive
	// it and build the per-invocation collaborators from it.
	App struct {
		Config     ConfigProvider
		Host       func() (hostenv.HostContext, error)
		HTTPClient *http.Client

		stdin    io.Reader
		stdout   io.Writer
		stderr   io.Writer
		exitCode int
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     ConfigProvider
		Host       func() (hostenv.HostContext, error)
		HTTPClient *http.Client
		Stdin      io.Reader
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Host == nil {
		deps.Host = hostenv.FromProcess
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}

	return &App{
		Config:     deps.Config,
		Host:       deps.Host,
		HTTPClient: deps.HTTPClient,
		stdin:      deps.Stdin,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
}

// report renders err and records the exit code. It always returns nil so
// that fang only ever sees flag and argument errors.
func (a *App) report(err error, verbose bool) error {
	a.exitCode = exitCodeFor(err)
	if err == nil {
		return nil
	}
	if exitErr := (*ExitError)(nil); errors.As(err, &exitErr) && exitErr.Err == nil {
		return nil
	}
	renderError(a.stderr, err, verbose)
	return nil
}

// logger returns the slog logger for one invocation, backed by charmbracelet/log.
func (a *App) logger(debug bool) *slog.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		Prefix:          "cosh",
		ReportTimestamp: debug,
	})
	return slog.New(handler)
}

// loadConfig loads the configuration and applies the global flags on top.
func (a *App) loadConfig(ctx context.Context, flags *rootFlags) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfigLoad, err)
	}

	if len(flags.repositories) > 0 {
		cfg.Repositories = flags.repositories
	}
	if flags.gcrKeyFile != "" {
		cfg.GCRKeyFile = flags.gcrKeyFile
	}
	if flags.engine != "" {
		cfg.ContainerEngine = container.EngineType(flags.engine)
	}
	if flags.noCache {
		cfg.Cache.Enabled = false
	}
	cfg.Volumes = append(cfg.Volumes, flags.volumes...)
	cfg.Env = append(cfg.Env, flags.env...)

	return cfg, nil
}
