// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	EngineTypeDocker EngineType = "docker"
	EngineTypePodman EngineType = "podman"

	// NetworkHost shares the host network namespace with the container.
	NetworkHost = "host"
)

// ErrNoEngineAvailable is the sentinel error wrapped by EngineNotAvailableError.
var ErrNoEngineAvailable = errors.New("no container engine available")

type (
	// EngineType identifies the container engine CLI.
	EngineType string

	// Engine runs containers through a runtime CLI.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// BinaryPath returns the resolved CLI path, empty when not installed.
		BinaryPath() string
		// Available reports whether the runtime answers a version query.
		Available(ctx context.Context) error
		// RunArgs returns the argv (without the binary) for opts.
		RunArgs(opts RunOptions) []string
		// Run runs a container in the foreground.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	}

	// RunOptions describes one foreground container invocation.
	RunOptions struct {
		// Image is the fully qualified image reference including the tag.
		Image string
		// Args are forwarded verbatim after the image.
		Args []string
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env holds "KEY=VALUE" entries, or bare "KEY" to pass the caller's value through.
		Env []string
		// Mounts are bind mounts in composition order.
		Mounts []Mount
		// Network is the --net value; empty keeps the runtime default.
		Network string
		// Interactive keeps stdin attached (-i).
		Interactive bool
		// TTY allocates a pseudo-terminal (-t).
		TTY bool
		// Remove deletes the container on exit (--rm).
		Remove bool
		// Custom is an opaque fragment appended after all other flags.
		Custom []string

		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunResult carries the container exit status.
	RunResult struct {
		// ExitCode is the container process exit code.
		ExitCode int
		// Error holds infrastructure failures (binary missing, exec failure).
		Error error
	}

	// EngineNotAvailableError is returned when no usable runtime CLI is found.
	EngineNotAvailableError struct {
		Engine EngineType
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrNoEngineAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrNoEngineAvailable }

// Validate checks the options before an invocation is built.
func (o RunOptions) Validate() error {
	var errs []error
	if o.Image == "" {
		errs = append(errs, errors.New("image must be non-empty"))
	}
	for _, m := range o.Mounts {
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewEngine returns the preferred engine, falling back to the other CLI when
// the preferred one is not installed.
func NewEngine(preferred EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	var primary, fallback Engine
	switch preferred {
	case EngineTypeDocker, "":
		primary, fallback = NewDockerEngine(opts...), NewPodmanEngine(opts...)
	case EngineTypePodman:
		primary, fallback = NewPodmanEngine(opts...), NewDockerEngine(opts...)
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}

	if primary.BinaryPath() != "" {
		return primary, nil
	}
	if fallback.BinaryPath() != "" {
		return fallback, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: preferred,
		Reason: fmt.Sprintf("neither %s nor %s is installed", primary.Name(), fallback.Name()),
	}
}
