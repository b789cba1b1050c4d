// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/i11/cosh/internal/clock"
	"github.com/i11/cosh/internal/container"
	"github.com/i11/cosh/internal/hostenv"
	"github.com/i11/cosh/internal/registry"
)

const (
	// DefaultWrapperTTL is how long a generated wrapper is reused as is.
	DefaultWrapperTTL = 10 * time.Minute

	// wrapperRuntime is the runtime command wrappers call; inside command
	// containers it resolves to the mounted runtime binary.
	wrapperRuntime = "docker"
)

type (
	// PlacedRecord is a command whose wrapper has been written to Path.
	PlacedRecord struct {
		Record registry.CommandRecord
		Tag    string
		Path   string
	}

	// WrapperGenerator writes wrapper scripts into one directory.
	WrapperGenerator struct {
		dir      string
		composer *hostenv.Composer
		extra    []hostenv.Placement
		custom   []string
		runtime  string
		ttl      time.Duration
		clock    clock.Clock
		logger   *slog.Logger
	}

	// WrapperOption configures a WrapperGenerator.
	WrapperOption func(*WrapperGenerator)
)

// Placement returns the mount placement of the wrapper.
func (p PlacedRecord) Placement() hostenv.Placement {
	return hostenv.Placement{Name: p.Record.Name, Source: p.Path}
}

// Placements converts placed records to mount placements.
func Placements(placed []PlacedRecord) []hostenv.Placement {
	out := make([]hostenv.Placement, 0, len(placed))
	for _, p := range placed {
		out = append(out, p.Placement())
	}
	return out
}

// WithExtraPlacements mounts additional binaries, such as the runtime, into
// every wrapped container.
func WithExtraPlacements(p ...hostenv.Placement) WrapperOption {
	return func(g *WrapperGenerator) {
		g.extra = append(g.extra, p...)
	}
}

// WithCustomFlags appends opaque runtime flags before the image.
func WithCustomFlags(flags ...string) WrapperOption {
	return func(g *WrapperGenerator) {
		g.custom = append(g.custom, flags...)
	}
}

// WithWrapperTTL sets how long an existing wrapper is reused.
func WithWrapperTTL(ttl time.Duration) WrapperOption {
	return func(g *WrapperGenerator) {
		g.ttl = ttl
	}
}

// WithWrapperClock sets the clock used to age wrappers.
func WithWrapperClock(c clock.Clock) WrapperOption {
	return func(g *WrapperGenerator) {
		g.clock = c
	}
}

// WithWrapperLogger sets the logger.
func WithWrapperLogger(l *slog.Logger) WrapperOption {
	return func(g *WrapperGenerator) {
		g.logger = l
	}
}

// NewWrapperGenerator writes wrappers into dir using composer for the static
// mounts and environment.
func NewWrapperGenerator(dir string, composer *hostenv.Composer, opts ...WrapperOption) *WrapperGenerator {
	g := &WrapperGenerator{
		dir:      dir,
		composer: composer,
		runtime:  wrapperRuntime,
		ttl:      DefaultWrapperTTL,
		clock:    clock.Real{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path returns the wrapper path of the command name.
func (g *WrapperGenerator) Path(name string) string {
	return filepath.Join(g.dir, name)
}

// Generate writes a wrapper for every record pinned to its default tag.
// Records without tags are skipped. Wrappers younger than the TTL are kept.
func (g *WrapperGenerator) Generate(records []registry.CommandRecord) ([]PlacedRecord, error) {
	placed := make([]PlacedRecord, 0, len(records))
	for _, rec := range records {
		tag, ok := rec.DefaultTag()
		if !ok {
			g.logger.Debug("skipping command without tags", "command", rec.Name)
			continue
		}
		placed = append(placed, PlacedRecord{Record: rec, Tag: tag, Path: g.Path(rec.Name)})
	}
	if len(placed) == 0 {
		return placed, nil
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating wrapper directory: %w", err)
	}

	placements := append(Placements(placed), g.extra...)
	for _, p := range placed {
		if g.fresh(p.Path) {
			continue
		}
		script, err := g.Render(p.Record, p.Tag, placements)
		if err != nil {
			return nil, err
		}
		if err := writeScript(g.dir, p.Path, script); err != nil {
			return nil, err
		}
		g.logger.Debug("wrote command wrapper", "command", p.Record.Name, "tag", p.Tag, "path", p.Path)
	}
	return placed, nil
}

func (g *WrapperGenerator) fresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			g.logger.Debug("cannot inspect wrapper", "path", path, "error", err)
		}
		return false
	}
	return g.clock.Since(info.ModTime()) <= g.ttl
}

// Render returns the wrapper script of record pinned to tag. placements are
// mounted read-only under /sbin in the command container.
func (g *WrapperGenerator) Render(record registry.CommandRecord, tag string, placements []hostenv.Placement) (string, error) {
	ref, err := record.Reference(tag)
	if err != nil {
		return "", err
	}
	env, err := g.composer.Environment()
	if err != nil {
		return "", err
	}

	var flagLines []string
	for _, e := range env {
		q, err := container.QuoteWord(e.String())
		if err != nil {
			return "", err
		}
		flagLines = append(flagLines, "-e "+q)
	}
	var mountLines []string
	for _, m := range g.composer.StaticMounts(placements) {
		q, err := container.QuoteWord(m.String())
		if err != nil {
			return "", err
		}
		mountLines = append(mountLines, "-v "+q)
	}
	customArgs, err := quoteAll(g.custom)
	if err != nil {
		return "", err
	}
	quoted, err := quoteAll([]string{ref, record.Name})
	if err != nil {
		return "", err
	}
	quotedRef, quotedName := quoted[0], quoted[1]
	// Static tmp and home mounts already cover a working directory at the
	// same path, except at the filesystem root where they are remapped.
	var covered []string
	for _, dir := range []string{g.composer.Host().TmpDir, g.composer.Host().Home} {
		if dir != hostenv.FSRoot && !slices.Contains(covered, dir) {
			covered = append(covered, dir)
		}
	}
	coveredDirs, err := quoteAll(covered)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("set -Eeuo pipefail\n\n")

	// Prefer a real binary of the same name once one is installed.
	fmt.Fprintf(&sb, "name=%s\n", quotedName)
	sb.WriteString(`self="$(readlink -f "$0")"` + "\n")
	sb.WriteString(`IFS=: read -ra path_dirs <<< "${PATH:-}"` + "\n")
	sb.WriteString(`for dir in ${path_dirs[@]+"${path_dirs[@]}"}; do` + "\n")
	sb.WriteString(`  candidate="${dir:-.}/${name}"` + "\n")
	sb.WriteString(`  if [ -f "$candidate" ] && [ -x "$candidate" ] && [ "$(readlink -f "$candidate")" != "$self" ]; then` + "\n")
	sb.WriteString(`    exec "$candidate" "$@"` + "\n")
	sb.WriteString("  fi\n")
	sb.WriteString("done\n\n")

	sb.WriteString(`workdir="$PWD"` + "\n")
	sb.WriteString(`target="$workdir"` + "\n")
	fmt.Fprintf(&sb, "if [ \"$workdir\" = %s ]; then\n", hostenv.FSRoot)
	fmt.Fprintf(&sb, "  target=%s\n", hostenv.RootWorkDir)
	sb.WriteString("fi\n")
	sb.WriteString(`workdir_mount=(-v "${workdir}:${target}")` + "\n")
	if len(coveredDirs) > 0 {
		sb.WriteString(`case "$workdir" in` + "\n")
		fmt.Fprintf(&sb, "  %s) workdir_mount=() ;;\n", strings.Join(coveredDirs, "|"))
		sb.WriteString("esac\n")
	}
	sb.WriteString("\n")

	sb.WriteString(`tty_flag=""` + "\n")
	sb.WriteString("if [ -t 0 ]; then\n")
	sb.WriteString(`  tty_flag="-t"` + "\n")
	sb.WriteString("fi\n\n")

	fmt.Fprintf(&sb, "exec %s run --net=%s -i ${tty_flag:+\"$tty_flag\"} --rm \\\n", g.runtime, container.NetworkHost)
	writeContinued(&sb, flagLines...)
	sb.WriteString("  ${workdir_mount[@]+\"${workdir_mount[@]}\"} \\\n")
	writeContinued(&sb, mountLines...)
	sb.WriteString("  -w \"$target\" \\\n")
	if len(customArgs) > 0 {
		writeContinued(&sb, strings.Join(customArgs, " "))
	}
	fmt.Fprintf(&sb, "  %s \"$@\"\n", quotedRef)

	return sb.String(), nil
}

// writeContinued writes each line indented with a trailing continuation.
func writeContinued(sb *strings.Builder, lines ...string) {
	for _, l := range lines {
		fmt.Fprintf(sb, "  %s \\\n", l)
	}
}

func quoteAll(words []string) ([]string, error) {
	out := make([]string, 0, len(words))
	for _, w := range words {
		q, err := container.QuoteWord(w)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// writeScript atomically replaces path with an executable script.
func writeScript(dir, path, script string) (err error) {
	tmp, err := os.CreateTemp(dir, ".wrapper-*")
	if err != nil {
		return fmt.Errorf("creating wrapper: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.WriteString(script); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing wrapper: %w", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("making wrapper executable: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing wrapper: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing wrapper: %w", err)
	}
	return nil
}
