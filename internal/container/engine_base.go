// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/i11/cosh/internal/issue"
)

type (
	// ExecCommandFunc creates the exec.Cmd for a CLI invocation.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// RunArgsTransformer rewrites run arguments after they are built.
	RunArgsTransformer func(args []string) []string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements the CLI plumbing shared by docker and podman.
	BaseCLIEngine struct {
		name               string
		binaryPath         string
		execCommand        ExecCommandFunc
		runArgsTransformer RunArgsTransformer
	}
)

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath pins the CLI path instead of looking it up on PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// WithRunArgsTransformer sets a custom run args transformer.
func WithRunArgsTransformer(fn RunArgsTransformer) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.runArgsTransformer = fn
	}
}

// NewBaseCLIEngine creates a base engine for the named CLI.
func NewBaseCLIEngine(name, binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:               name,
		binaryPath:         binaryPath,
		execCommand:        exec.CommandContext,
		runArgsTransformer: func(args []string) []string { return args },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the engine name.
func (e *BaseCLIEngine) Name() string { return e.name }

// BinaryPath returns the path to the engine CLI.
func (e *BaseCLIEngine) BinaryPath() string { return e.binaryPath }

// RunArgs constructs the arguments of a run invocation.
//
// Generated command: <binary> run [--net=N] [-i] [-t] [--rm] [-e ...] [-v ...] [-w dir] [custom...] <image> [args...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Network != "" {
		args = append(args, "--net="+opts.Network)
	}
	if opts.Interactive {
		args = append(args, "-i")
	}
	if opts.TTY {
		args = append(args, "-t")
	}
	if opts.Remove {
		args = append(args, "--rm")
	}
	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}
	for _, m := range opts.Mounts {
		args = append(args, "-v", m.String())
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	args = append(args, opts.Custom...)
	args = append(args, opts.Image)
	args = append(args, opts.Args...)

	return e.runArgsTransformer(args)
}

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return out.String(), nil
}

// version queries the runtime with the given format template.
func (e *BaseCLIEngine) version(ctx context.Context, format string) error {
	if e.binaryPath == "" {
		return &EngineNotAvailableError{Engine: EngineType(e.name), Reason: "binary not found on PATH"}
	}
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", format)
	if err != nil {
		return &EngineNotAvailableError{Engine: EngineType(e.name), Reason: err.Error()}
	}
	if strings.TrimSpace(out) == "" {
		return &EngineNotAvailableError{Engine: EngineType(e.name), Reason: "empty version response"}
	}
	return nil
}

// Run runs a container in the foreground. A non-zero container exit code is
// reported in RunResult.ExitCode, not as an error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, runContainerError(e.name, opts, err)
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	err := cmd.Run()

	result := &RunResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = runContainerError(e.name, opts, err)
		}
	}

	return result, nil
}

// runContainerError creates an actionable error for container run failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	return issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image).
		WithSuggestion("Verify the image exists (try: "+engine+" pull "+opts.Image+")").
		WithSuggestion("Check that volume mount paths exist on the host").
		WithSuggestion("Run with --debug to see the full invocation").
		Wrap(cause).
		BuildError()
}
