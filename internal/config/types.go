// SPDX-License-Identifier: MPL-2.0

package config

import (
	"time"

	"github.com/i11/cosh/internal/cache"
	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/lock"
	"github.com/i11/cosh/internal/provision"
)

// DefaultRepository is the repository searched when none is configured.
const DefaultRepository = "actions"

type (
	// Config is the effective cosh configuration.
	Config struct {
		// Repositories are searched in order; the first one listing a name wins.
		Repositories []string `json:"repositories" mapstructure:"repositories"`
		// GCRKeyFile is a service account key used for token-auth registries.
		// Empty means ambient Google credentials.
		GCRKeyFile      string               `json:"gcr_key_file" mapstructure:"gcr_key_file"`
		ContainerEngine container.EngineType `json:"container_engine" mapstructure:"container_engine"`
		Cache           CacheConfig          `json:"cache" mapstructure:"cache"`
		Lock            LockConfig           `json:"lock" mapstructure:"lock"`
		Wrapper         WrapperConfig        `json:"wrapper" mapstructure:"wrapper"`
		Runtime         RuntimeConfig        `json:"runtime" mapstructure:"runtime"`
		// Volumes are extra mounts in source:destination[:ro] form.
		Volumes []string `json:"volumes" mapstructure:"volumes"`
		// Env holds KEY=VALUE overrides and bare KEY passthroughs.
		Env []string `json:"env" mapstructure:"env"`
		// CustomFlags are appended verbatim to every run invocation.
		CustomFlags []string `json:"custom_flags" mapstructure:"custom_flags"`
		// ScratchDir replaces the temp base for the cosh scratch tree.
		ScratchDir string `json:"scratch_dir" mapstructure:"scratch_dir"`
	}

	// CacheConfig controls the registry result cache.
	CacheConfig struct {
		Enabled bool          `json:"enabled" mapstructure:"enabled"`
		TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
		Dir     string        `json:"dir" mapstructure:"dir"`
	}

	// LockConfig controls the execution mutex.
	LockConfig struct {
		TTL time.Duration `json:"ttl" mapstructure:"ttl"`
		// HoldDuringRun keeps the mutex until the container exits instead of
		// releasing it once provisioning is done.
		HoldDuringRun bool `json:"hold_during_run" mapstructure:"hold_during_run"`
	}

	// WrapperConfig controls wrapper script regeneration.
	WrapperConfig struct {
		TTL time.Duration `json:"ttl" mapstructure:"ttl"`
	}

	// RuntimeConfig selects the static runtime archive to provision.
	RuntimeConfig struct {
		URL    string `json:"url" mapstructure:"url"`
		SHA256 string `json:"sha256" mapstructure:"sha256"`
		Member string `json:"member" mapstructure:"member"`
	}
)

// DefaultConfig returns the configuration used when no file or override is present.
func DefaultConfig() *Config {
	return &Config{
		Repositories:    []string{DefaultRepository},
		ContainerEngine: container.EngineTypeDocker,
		Cache: CacheConfig{
			Enabled: true,
			TTL:     cache.DefaultTTL,
		},
		Lock: LockConfig{
			TTL: lock.DefaultTTL,
		},
		Wrapper: WrapperConfig{
			TTL: provision.DefaultWrapperTTL,
		},
		Runtime: RuntimeConfig{
			URL:    provision.DefaultRuntimeURL,
			SHA256: provision.DefaultRuntimeSHA256,
			Member: provision.DefaultRuntimeMember,
		},
		Volumes:     []string{},
		Env:         []string{},
		CustomFlags: []string{},
	}
}
