// SPDX-License-Identifier: MPL-2.0

// Package dispatch resolves a command invocation to an image and runs it.
//
// A run provisions the runtime binary and the command wrappers under the
// execution lock, composes the mounts and environment for the host, and hands
// the invocation to the container engine in the foreground.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/term"

	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/hostenv"
	"github.com/i11/cosh/internal/provision"
	"github.com/i11/cosh/internal/registry"
)

// RuntimeName is the command name of the provisioned runtime binary. Catalogs
// must not expose a command of that name.
const RuntimeName = "docker"

type (
	// Catalog lists the commands of every configured repository.
	Catalog interface {
		Commands(ctx context.Context) ([]registry.CommandRecord, error)
	}

	// RuntimeProvisioner installs the runtime binary and returns its path.
	RuntimeProvisioner interface {
		Provision(ctx context.Context) (string, error)
	}

	// WrapperGenerator writes one wrapper per command.
	WrapperGenerator interface {
		Generate(records []registry.CommandRecord) ([]provision.PlacedRecord, error)
	}

	// Mutex serializes provisioning across invocations.
	Mutex interface {
		WithLock(ctx context.Context, fn func(context.Context) error) error
	}

	// Deps are the collaborators of a Dispatcher.
	Deps struct {
		Catalog  Catalog
		Engine   container.Engine
		Composer *hostenv.Composer
		Runtime  RuntimeProvisioner
		Wrappers WrapperGenerator
		Mutex    Mutex
	}

	// Resolution is a command pinned to one published image.
	Resolution struct {
		Record registry.CommandRecord
		Tag    string
		Image  string
	}

	// Dispatcher runs commands.
	Dispatcher struct {
		Deps

		holdDuringRun bool
		custom        []string
		stdin         io.Reader
		stdout        io.Writer
		stderr        io.Writer
		isTerminal    func(io.Reader) bool
		logger        *slog.Logger
	}

	// Option configures a Dispatcher.
	Option func(*Dispatcher)
)

// WithHoldLockDuringRun keeps the execution lock until the container exits.
func WithHoldLockDuringRun(hold bool) Option {
	return func(d *Dispatcher) {
		d.holdDuringRun = hold
	}
}

// WithCustomFlags appends opaque runtime flags to the invocation.
func WithCustomFlags(flags ...string) Option {
	return func(d *Dispatcher) {
		d.custom = append(d.custom, flags...)
	}
}

// WithIO sets the streams attached to the container.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(d *Dispatcher) {
		d.stdin, d.stdout, d.stderr = stdin, stdout, stderr
	}
}

// WithTerminalCheck overrides how the dispatcher decides to request a TTY.
func WithTerminalCheck(fn func(io.Reader) bool) Option {
	return func(d *Dispatcher) {
		d.isTerminal = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a dispatcher.
func New(deps Deps, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		Deps:       deps,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		isTerminal: isTerminal,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Commands returns every runnable command.
func (d *Dispatcher) Commands(ctx context.Context) ([]registry.CommandRecord, error) {
	return d.Catalog.Commands(ctx)
}

// Resolve pins cmd to an image. An explicit version is used as given.
func (d *Dispatcher) Resolve(ctx context.Context, cmd Command) (Resolution, error) {
	records, err := d.Commands(ctx)
	if err != nil {
		return Resolution{}, err
	}
	return resolve(records, cmd, d.logger)
}

func resolve(records []registry.CommandRecord, cmd Command, logger *slog.Logger) (Resolution, error) {
	i := slices.IndexFunc(records, func(r registry.CommandRecord) bool { return r.Name == cmd.Name })
	if i < 0 {
		return Resolution{}, fmt.Errorf("%w: %s", ErrCommandNotFound, cmd)
	}
	rec := records[i]

	tag := cmd.Version
	if tag == "" {
		var ok bool
		if tag, ok = rec.DefaultTag(); !ok {
			return Resolution{}, fmt.Errorf("%w: %s has no published tags", ErrNoVersion, cmd.Name)
		}
	} else if !rec.HasTag(tag) {
		logger.Debug("version not among listed tags", "command", cmd.Name, "version", tag)
	}

	image, err := rec.Reference(tag)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrCommandNotFound, err)
	}
	return Resolution{Record: rec, Tag: tag, Image: image}, nil
}

// Run resolves cmd, provisions the host and runs the command container.
// The container exit code is returned; a non-nil error means the container
// could not be run.
func (d *Dispatcher) Run(ctx context.Context, cmd Command, args []string) (int, error) {
	if err := d.Engine.Available(ctx); err != nil {
		return 1, err
	}

	records, err := d.Commands(ctx)
	if err != nil {
		return 1, err
	}
	res, err := resolve(records, cmd, d.logger)
	if err != nil {
		return 1, err
	}
	d.logger.Debug("resolved command", "command", cmd.String(), "image", res.Image)

	var opts container.RunOptions
	prepare := func(ctx context.Context) error {
		var err error
		opts, err = d.prepare(ctx, records, res, args)
		return err
	}

	if !d.holdDuringRun {
		if err := d.Mutex.WithLock(ctx, prepare); err != nil {
			return 1, err
		}
		return d.run(ctx, opts)
	}

	exitCode := 1
	err = d.Mutex.WithLock(ctx, func(ctx context.Context) error {
		if err := prepare(ctx); err != nil {
			return err
		}
		var err error
		exitCode, err = d.run(ctx, opts)
		return err
	})
	return exitCode, err
}

// prepare provisions the runtime and wrappers and builds the invocation.
func (d *Dispatcher) prepare(ctx context.Context, records []registry.CommandRecord, res Resolution, args []string) (container.RunOptions, error) {
	runtimePath, err := d.Runtime.Provision(ctx)
	if err != nil {
		return container.RunOptions{}, err
	}
	placed, err := d.Wrappers.Generate(records)
	if err != nil {
		return container.RunOptions{}, err
	}

	placements := append(provision.Placements(placed), hostenv.Placement{Name: RuntimeName, Source: runtimePath})
	env, err := d.Composer.Environment()
	if err != nil {
		return container.RunOptions{}, err
	}

	return container.RunOptions{
		Image:       res.Image,
		Args:        args,
		WorkDir:     d.Composer.WorkDir(),
		Env:         hostenv.EnvStrings(env),
		Mounts:      d.Composer.Mounts(placements),
		Network:     container.NetworkHost,
		Interactive: true,
		TTY:         d.isTerminal(d.stdin),
		Remove:      true,
		Custom:      d.custom,
		Stdin:       d.stdin,
		Stdout:      d.stdout,
		Stderr:      d.stderr,
	}, nil
}

func (d *Dispatcher) run(ctx context.Context, opts container.RunOptions) (int, error) {
	if d.logger.Enabled(ctx, slog.LevelDebug) {
		if line, err := container.CommandLine(d.Engine.Name(), d.Engine.RunArgs(opts)); err == nil {
			d.logger.Debug("running container", "command", line)
		}
	}

	result, err := d.Engine.Run(ctx, opts)
	if err != nil {
		return 1, err
	}
	if result.Error != nil {
		return result.ExitCode, result.Error
	}
	return result.ExitCode, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
