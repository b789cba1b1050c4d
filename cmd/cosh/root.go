// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the cosh command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/i11/cosh/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the global flags. Slice flags add to the configured
// values except --repository, which replaces them.
type rootFlags struct {
	debug        bool
	noCache      bool
	configPath   string
	gcrKeyFile   string
	engine       string
	repositories []string
	volumes      []string
	env          []string
}

func newRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "cosh <command>[:version] [args...]",
		Short: "Run registry-published container images as if they were local commands",
		Long: TitleStyle.Render("cosh") + SubtitleStyle.Render(" - a container shell") + `

cosh looks a command name up in the configured image repositories and runs
the matching image with the current directory, home directory and Docker
socket mounted, so the containerized tool behaves like a native binary.

Everything after the command name is passed to the container unchanged.

` + SubtitleStyle.Render("Examples:") + `
  cosh kubectl get pods          Run the newest kubectl image
  cosh terraform:1.5.7 plan      Run a pinned version
  cosh --repository gcr.io/acme/tools lint .
  cosh self list                 List every available command`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return app.report(runCommand(cmd.Context(), app, flags, args[0], args[1:]), flags.debug)
		},
	}

	// Flags stop at the command name; the rest belongs to the container.
	root.Flags().SetInterspersed(false)
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&flags.noCache, "no-cache", false, "bypass the registry result cache")
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/cosh/config.cue)")
	pf.StringVar(&flags.gcrKeyFile, "gcr-key-file", "", "service account key for token-authenticated registries")
	pf.StringVar(&flags.engine, "engine", "", "container engine (docker or podman)")
	pf.StringArrayVarP(&flags.repositories, "repository", "r", nil, "image repository to search, in order (repeatable)")
	pf.StringArrayVarP(&flags.volumes, "volume", "v", nil, "extra mount source:destination[:ro] (repeatable)")
	pf.StringArrayVarP(&flags.env, "env", "e", nil, "environment KEY=VALUE, or KEY to pass through (repeatable)")

	root.AddCommand(newSelfCommand(app, flags))

	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI with the process arguments and exits.
func Execute() {
	os.Exit(execute(context.Background(), NewApp(Dependencies{}), os.Args[1:]))
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, app *App, args []string) int {
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetIn(app.stdin)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	// Command failures are rendered by App.report and end up in app.exitCode,
	// so whatever fang returns is a flag or argument error.
	err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err == nil {
		return app.exitCode
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUsage
}

// formatErrorForDisplay uses the actionable format when the error carries one.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
