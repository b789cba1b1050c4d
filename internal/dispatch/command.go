// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/i11/cosh/internal/registry"
)

var (
	// ErrCommandNotFound is returned when no configured repository publishes the command.
	ErrCommandNotFound = errors.New("command not found")

	// ErrNoVersion is returned when no version is given and none can be defaulted.
	ErrNoVersion = errors.New("no version available")
)

// Command is a parsed "name[:version]" invocation target.
type Command struct {
	Name    string
	Version string
}

// ParseCommand splits s on its first ":". An empty version means the
// default version is chosen at resolution time.
func ParseCommand(s string) (Command, error) {
	name, version, _ := strings.Cut(strings.TrimSpace(s), ":")
	if name == "" {
		return Command{}, fmt.Errorf("%w: empty command name in %q", ErrCommandNotFound, s)
	}
	return Command{Name: name, Version: version}, nil
}

// String returns "name" or "name:version".
func (c Command) String() string {
	if c.Version == "" {
		return c.Name
	}
	return c.Name + ":" + c.Version
}

// DefaultVersion returns "latest" when tags contain it, otherwise the first
// tag. tags must be ordered newest first.
func DefaultVersion(tags []string) (string, bool) {
	return registry.CommandRecord{Tags: tags}.DefaultTag()
}
