// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/i11/cosh/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "cosh"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override, e.g. COSH_LOCK_TTL.
	EnvPrefix = "COSH"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the cosh configuration directory, $XDG_CONFIG_HOME/cosh.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	if xdg.ConfigHome == "" {
		return "", errors.New("failed to resolve the XDG config directory")
	}
	return filepath.Join(xdg.ConfigHome, AppName), nil
}

// FilePath returns the default config file location.
func FilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without touching
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path passed to --config").
				WithSuggestion("Run 'cosh self config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir := opts.ConfigDirPath
		if cfgDir == "" {
			dir, err := ConfigDir()
			if err != nil {
				return nil, "", err
			}
			cfgDir = dir
		}
		if p := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
			resolvedPath = p
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare the file with 'cosh self config show'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, resolvedPath, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("repositories", defaults.Repositories)
	v.SetDefault("gcr_key_file", defaults.GCRKeyFile)
	v.SetDefault("container_engine", string(defaults.ContainerEngine))
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("lock.ttl", defaults.Lock.TTL)
	v.SetDefault("lock.hold_during_run", defaults.Lock.HoldDuringRun)
	v.SetDefault("wrapper.ttl", defaults.Wrapper.TTL)
	v.SetDefault("runtime.url", defaults.Runtime.URL)
	v.SetDefault("runtime.sha256", defaults.Runtime.SHA256)
	v.SetDefault("runtime.member", defaults.Runtime.Member)
	v.SetDefault("volumes", defaults.Volumes)
	v.SetDefault("env", defaults.Env)
	v.SetDefault("custom_flags", defaults.CustomFlags)
	v.SetDefault("scratch_dir", defaults.ScratchDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// loadCUEIntoViper parses a CUE file, validates it against #Config and merges
// it into v.
//
// The file decodes to a map rather than Config so that Viper keeps the
// defaults for omitted fields and env overrides still win.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := checkFileSize(data, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to path unless a file
// is already there. It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE renders cfg as a config.cue document accepted by #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// cosh configuration file\n\n")

	writeList(&sb, "repositories", cfg.Repositories)
	fmt.Fprintf(&sb, "gcr_key_file: %q\n", cfg.GCRKeyFile)
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)

	sb.WriteString("\ncache: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Cache.Enabled)
	fmt.Fprintf(&sb, "\tttl: %q\n", cfg.Cache.TTL)
	fmt.Fprintf(&sb, "\tdir: %q\n", cfg.Cache.Dir)
	sb.WriteString("}\n")

	sb.WriteString("\nlock: {\n")
	fmt.Fprintf(&sb, "\tttl: %q\n", cfg.Lock.TTL)
	fmt.Fprintf(&sb, "\thold_during_run: %v\n", cfg.Lock.HoldDuringRun)
	sb.WriteString("}\n")

	sb.WriteString("\nwrapper: {\n")
	fmt.Fprintf(&sb, "\tttl: %q\n", cfg.Wrapper.TTL)
	sb.WriteString("}\n")

	sb.WriteString("\nruntime: {\n")
	fmt.Fprintf(&sb, "\turl: %q\n", cfg.Runtime.URL)
	fmt.Fprintf(&sb, "\tsha256: %q\n", cfg.Runtime.SHA256)
	fmt.Fprintf(&sb, "\tmember: %q\n", cfg.Runtime.Member)
	sb.WriteString("}\n\n")

	writeList(&sb, "volumes", cfg.Volumes)
	writeList(&sb, "env", cfg.Env)
	writeList(&sb, "custom_flags", cfg.CustomFlags)
	fmt.Fprintf(&sb, "scratch_dir: %q\n", cfg.ScratchDir)

	return sb.String()
}

func writeList(sb *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		fmt.Fprintf(sb, "%s: []\n", key)
		return
	}
	fmt.Fprintf(sb, "%s: [\n", key)
	for _, val := range values {
		fmt.Fprintf(sb, "\t%q,\n", val)
	}
	sb.WriteString("]\n")
}
