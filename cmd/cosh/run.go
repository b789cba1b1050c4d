// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/i11/cosh/internal/cache"
	"github.com/i11/cosh/internal/config"
	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/dispatch"
	"github.com/i11/cosh/internal/hostenv"
	"github.com/i11/cosh/internal/lock"
	"github.com/i11/cosh/internal/provision"
	"github.com/i11/cosh/internal/registry"
	"github.com/i11/cosh/internal/scratch"
)

// session holds the collaborators built for one invocation.
type session struct {
	cfg     *config.Config
	layout  scratch.Layout
	cache   cache.Cache
	catalog *registry.Catalog
	mutex   *lock.Mutex
	logger  *slog.Logger
}

// newSession loads the configuration and builds everything that does not
// need the container engine or the host context.
func newSession(ctx context.Context, app *App, flags *rootFlags) (*session, error) {
	logger := app.logger(flags.debug)

	cfg, layout, err := loadLayout(ctx, app, flags)
	if err != nil {
		return nil, err
	}

	var c cache.Cache = cache.NoCache{Log: logger}
	if cfg.Cache.Enabled {
		c = cache.NewFileCache(layout.CacheDir(), cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logger))
	}

	regOpts := []registry.Option{
		registry.WithHTTPClient(app.HTTPClient),
		registry.WithLogger(logger),
		registry.WithUserAgent("cosh/" + Version),
	}
	if cfg.GCRKeyFile != "" {
		regOpts = append(regOpts, registry.WithKeyFile(cfg.GCRKeyFile))
	}
	resolvers := make([]*registry.Resolver, 0, len(cfg.Repositories))
	for _, repo := range cfg.Repositories {
		r, err := registry.NewResolver(repo, regOpts...)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, r)
	}

	catalog := registry.NewCatalog(resolvers, c,
		registry.WithExcluded(dispatch.RuntimeName),
		registry.WithCatalogLogger(logger),
	)
	mutex := lock.New(layout.Root(), lock.WithTTL(cfg.Lock.TTL), lock.WithLogger(logger))

	return &session{
		cfg:     cfg,
		layout:  layout,
		cache:   c,
		catalog: catalog,
		mutex:   mutex,
		logger:  logger,
	}, nil
}

// loadLayout loads the configuration and creates the scratch directory.
func loadLayout(ctx context.Context, app *App, flags *rootFlags) (*config.Config, scratch.Layout, error) {
	cfg, err := app.loadConfig(ctx, flags)
	if err != nil {
		return nil, scratch.Layout{}, err
	}

	base := cfg.ScratchDir
	if base == "" {
		base = hostenv.TempBase()
	}
	layout := scratch.New(base, cfg.Cache.Dir)
	if err := layout.Ensure(); err != nil {
		return nil, scratch.Layout{}, err
	}
	return cfg, layout, nil
}

// dispatcher builds the Dispatcher for s against the current host.
func (s *session) dispatcher(app *App) (*dispatch.Dispatcher, error) {
	host, err := app.Host()
	if err != nil {
		return nil, fmt.Errorf("reading host context: %w", err)
	}

	volumes, err := hostenv.ParseVolumes(s.cfg.Volumes)
	if err != nil {
		return nil, err
	}
	envs, err := hostenv.ParseEnvs(s.cfg.Env)
	if err != nil {
		return nil, err
	}

	engine, err := container.NewEngine(s.cfg.ContainerEngine)
	if err != nil {
		return nil, err
	}

	composer := hostenv.NewComposer(host,
		hostenv.WithVolumes(volumes...),
		hostenv.WithEnv(envs...),
		hostenv.WithLogger(s.logger),
	)

	runtime := provision.NewRuntimeProvisioner(s.layout.RuntimeDir(),
		provision.WithSource(s.cfg.Runtime.URL, s.cfg.Runtime.SHA256),
		provision.WithMember(s.cfg.Runtime.Member),
		provision.WithHTTPClient(app.HTTPClient),
		provision.WithRuntimeLogger(s.logger),
	)

	wrappers := provision.NewWrapperGenerator(s.layout.BinDir(), composer,
		provision.WithExtraPlacements(hostenv.Placement{Name: dispatch.RuntimeName, Source: runtime.BinaryPath()}),
		provision.WithCustomFlags(s.cfg.CustomFlags...),
		provision.WithWrapperTTL(s.cfg.Wrapper.TTL),
		provision.WithWrapperLogger(s.logger),
	)

	deps := dispatch.Deps{
		Catalog:  s.catalog,
		Engine:   engine,
		Composer: composer,
		Runtime:  runtime,
		Wrappers: wrappers,
		Mutex:    s.mutex,
	}
	return dispatch.New(deps,
		dispatch.WithHoldLockDuringRun(s.cfg.Lock.HoldDuringRun),
		dispatch.WithCustomFlags(s.cfg.CustomFlags...),
		dispatch.WithIO(app.stdin, app.stdout, app.stderr),
		dispatch.WithLogger(s.logger),
	), nil
}

// runCommand resolves name[:version] and runs it with args.
func runCommand(ctx context.Context, app *App, flags *rootFlags, spec string, args []string) error {
	cmd, err := dispatch.ParseCommand(spec)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, app, flags)
	if err != nil {
		return err
	}
	d, err := s.dispatcher(app)
	if err != nil {
		return err
	}

	code, err := d.Run(ctx, cmd, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
