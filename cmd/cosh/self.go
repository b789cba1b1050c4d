// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/i11/cosh/internal/cache"
	"github.com/i11/cosh/internal/config"
	"github.com/i11/cosh/internal/lock"
	"github.com/i11/cosh/internal/registry"

	"github.com/spf13/cobra"
)

// newSelfCommand creates the `cosh self` tree. Commands published under the
// name "self" are shadowed by it.
func newSelfCommand(app *App, flags *rootFlags) *cobra.Command {
	selfCmd := &cobra.Command{
		Use:   "self",
		Short: "Inspect and maintain cosh itself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	selfCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every command the configured repositories provide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.report(listCommands(cmd.Context(), app, flags), flags.debug)
		},
	})

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry result cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached registry result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.report(clearCache(cmd.Context(), app, flags), flags.debug)
		},
	})
	selfCmd.AddCommand(cacheCmd)

	selfCmd.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "Release the execution lock left by a crashed invocation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.report(unlock(cmd.Context(), app, flags), flags.debug)
		},
	})

	selfCmd.AddCommand(newConfigCommand(app, flags))

	return selfCmd
}

func listCommands(ctx context.Context, app *App, flags *rootFlags) error {
	s, err := newSession(ctx, app, flags)
	if err != nil {
		return err
	}
	records, err := s.catalog.Commands(ctx)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no commands found)"))
		return nil
	}
	writeCommandTable(app.stdout, records)
	return nil
}

// writeCommandTable prints one line per record: name, default version and image.
func writeCommandTable(w io.Writer, records []registry.CommandRecord) {
	nameWidth, tagWidth := len("COMMAND"), len("VERSION")
	for _, r := range records {
		nameWidth = max(nameWidth, len(r.Name))
		if tag, ok := r.DefaultTag(); ok {
			tagWidth = max(tagWidth, len(tag))
		}
	}

	fmt.Fprintf(w, "%s  %s  %s\n",
		TitleStyle.Render(fmt.Sprintf("%-*s", nameWidth, "COMMAND")),
		TitleStyle.Render(fmt.Sprintf("%-*s", tagWidth, "VERSION")),
		TitleStyle.Render("IMAGE"))
	for _, r := range records {
		tag, _ := r.DefaultTag()
		fmt.Fprintf(w, "%s  %s  %s\n",
			CmdStyle.Render(fmt.Sprintf("%-*s", nameWidth, r.Name)),
			SuccessStyle.Render(fmt.Sprintf("%-*s", tagWidth, tag)),
			SubtitleStyle.Render(r.ImageReference()))
	}
}

func clearCache(ctx context.Context, app *App, flags *rootFlags) error {
	_, layout, err := loadLayout(ctx, app, flags)
	if err != nil {
		return err
	}

	removed, err := cache.NewFileCache(layout.CacheDir()).Clear()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s removed %d cache entries from %s\n", SuccessStyle.Render("✓"), removed, layout.CacheDir())
	return nil
}

func unlock(ctx context.Context, app *App, flags *rootFlags) error {
	cfg, layout, err := loadLayout(ctx, app, flags)
	if err != nil {
		return err
	}

	m := lock.New(layout.Root(), lock.WithTTL(cfg.Lock.TTL), lock.WithLogger(app.logger(flags.debug)))
	if err := m.Unlock(); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s execution lock released\n", SuccessStyle.Render("✓"))
	return nil
}

func newConfigCommand(app *App, flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cosh configuration",
		Long: `Manage cosh configuration.

Configuration is read from $XDG_CONFIG_HOME/cosh/config.cue (usually
~/.config/cosh/config.cue) and COSH_* environment variables, e.g.
COSH_LOCK_TTL=30m or COSH_CACHE_ENABLED=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				return app.report(err, flags.debug)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.report(initConfig(app, flags), flags.debug)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(flags)
			if err != nil {
				return app.report(err, flags.debug)
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}

func configFilePath(flags *rootFlags) (string, error) {
	if flags.configPath != "" {
		return flags.configPath, nil
	}
	return config.FilePath()
}

func initConfig(app *App, flags *rootFlags) error {
	path, err := configFilePath(flags)
	if err != nil {
		return err
	}

	written, err := config.CreateDefaultConfig(path)
	if err != nil {
		return err
	}
	if !written {
		fmt.Fprintf(app.stdout, "%s %s already exists\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s wrote %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
