// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"fmt"
	"log/slog"
	"path"

	"mvdan.cc/sh/v3/shell"

	"github.com/i11/cosh/internal/container"
)

const (
	// FSRoot is the host filesystem root, which is never bound directly.
	FSRoot = "/"
	// RootRemapBase prefixes the target of a mount whose source is FSRoot.
	RootRemapBase = "/mount"
	// RootWorkDir is the container working directory when the host one is FSRoot.
	RootWorkDir = RootRemapBase + "/root"
	// ContainerHome is the canonical home directory inside command containers.
	ContainerHome = "/home"
	// DockerSocket is the runtime control socket.
	DockerSocket = "/var/run/docker.sock"
	// DeviceDir is passed through to every container.
	DeviceDir = "/dev"
	// BinDir receives one read-only mount per placed command.
	BinDir = "/sbin"

	HomeVar        = "HOME"
	SSHAuthSockVar = "SSH_AUTH_SOCK"
	DockerHostVar  = "DOCKER_HOST"
)

type (
	// Placement binds a command name to the host file that implements it.
	Placement struct {
		Name   string
		Source string
	}

	// Composer produces the mounts, environment and working directory of one
	// container invocation. Targets are never de-duplicated.
	Composer struct {
		host    HostContext
		volumes []container.Mount
		env     []EnvVar
		logger  *slog.Logger
	}

	// ComposerOption configures a Composer.
	ComposerOption func(*Composer)
)

// WithVolumes appends user volumes after the built-in mounts.
func WithVolumes(mounts ...container.Mount) ComposerOption {
	return func(c *Composer) {
		c.volumes = append(c.volumes, mounts...)
	}
}

// WithEnv overlays user environment entries on the defaults.
func WithEnv(vars ...EnvVar) ComposerOption {
	return func(c *Composer) {
		c.env = append(c.env, vars...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = l
	}
}

// NewComposer creates a composer for host.
func NewComposer(host HostContext, opts ...ComposerOption) *Composer {
	c := &Composer{host: host, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the host description.
func (c *Composer) Host() HostContext { return c.host }

// WorkDir returns the container working directory.
func (c *Composer) WorkDir() string {
	if c.host.WorkDir == FSRoot {
		return RootWorkDir
	}
	return c.host.WorkDir
}

// Mounts returns every mount for an invocation from the host working directory.
func (c *Composer) Mounts(placements []Placement) []container.Mount {
	return c.compose(placements, true)
}

// StaticMounts returns the mounts that do not depend on the working
// directory. Generated wrappers add the working directory mount themselves
// when they run.
func (c *Composer) StaticMounts(placements []Placement) []container.Mount {
	return c.compose(placements, false)
}

func (c *Composer) compose(placements []Placement, withWorkDir bool) []container.Mount {
	h := c.host
	var mounts []container.Mount

	if withWorkDir {
		mounts = append(mounts, c.rootMount(h.WorkDir, "root", ""))
	}
	if !withWorkDir || h.TmpDir != h.WorkDir {
		mounts = append(mounts, c.rootMount(h.TmpDir, "tmp", ""))
	}
	if !withWorkDir || h.Home != h.WorkDir {
		mounts = append(mounts, c.rootMount(h.Home, "home", ""))
	}
	if h.Home != ContainerHome {
		mounts = append(mounts, c.rootMount(h.Home, "home", ContainerHome))
	}
	if h.isSocket(DockerSocket) {
		mounts = append(mounts, c.rootMount(DockerSocket, "docker.sock", ""))
	}
	mounts = append(mounts, c.rootMount(DeviceDir, "dev", ""))

	for _, p := range placements {
		mounts = append(mounts, container.Mount{Source: p.Source, Target: path.Join(BinDir, p.Name), ReadOnly: true})
	}
	mounts = append(mounts, c.volumes...)

	if sock, ok := h.lookup(SSHAuthSockVar); ok && sock != "" {
		mounts = append(mounts, container.Mount{Source: sock, Target: sock})
	}
	return mounts
}

// rootMount binds source to target, or to source itself when target is
// empty. A source at the filesystem root without an explicit target is
// remapped below RootRemapBase.
func (c *Composer) rootMount(source, name, target string) container.Mount {
	if target == "" {
		target = source
		if source == FSRoot {
			target = path.Join(RootRemapBase, name)
			c.logger.Warn("directory is the filesystem root, embedded commands cannot reach it", "name", name, "target", target)
		}
	}
	return container.Mount{Source: source, Target: target}
}

// Environment returns the default entries overlaid with the user entries.
// Keys are unique and keep the position of their first appearance; the last
// value for a key wins. User values are expanded against the host environment.
func (c *Composer) Environment() ([]EnvVar, error) {
	home := c.host.Home
	if home == FSRoot {
		home = ContainerHome
	}

	vars := []EnvVar{
		{Key: HomeVar, Value: home},
		{Key: SSHAuthSockVar, Passthrough: true},
	}
	if dh, ok := c.host.lookup(DockerHostVar); ok && dh != "" {
		vars = append(vars, EnvVar{Key: DockerHostVar, Value: dh})
	} else if c.host.isSocket(DockerSocket) {
		vars = append(vars, EnvVar{Key: DockerHostVar, Value: "unix://" + DockerSocket})
	}

	for _, v := range c.env {
		if !v.Passthrough {
			expanded, err := shell.Expand(v.Value, c.expandLookup)
			if err != nil {
				return nil, fmt.Errorf("%w %s: expanding value: %w", ErrInvalidEnv, v.Key, err)
			}
			v.Value = expanded
		}
		vars = append(vars, v)
	}
	return dedupe(vars), nil
}

func (c *Composer) expandLookup(name string) string {
	v, _ := c.host.lookup(name)
	return v
}

func dedupe(vars []EnvVar) []EnvVar {
	index := make(map[string]int, len(vars))
	out := make([]EnvVar, 0, len(vars))
	for _, v := range vars {
		if i, ok := index[v.Key]; ok {
			out[i] = v
			continue
		}
		index[v.Key] = len(out)
		out = append(out, v)
	}
	return out
}
