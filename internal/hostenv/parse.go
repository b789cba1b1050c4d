// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/i11/cosh/internal/container"
)

var (
	// ErrInvalidVolume is returned for volume specs that are not "source:destination[:ro]".
	ErrInvalidVolume = errors.New("invalid volume")

	// ErrInvalidEnv is returned for environment specs without a usable key.
	ErrInvalidEnv = errors.New("invalid environment variable")
)

// EnvVar is one container environment entry. A passthrough entry carries only
// its key and lets the runtime copy the value from the invoking environment.
type EnvVar struct {
	Key         string
	Value       string
	Passthrough bool
}

// String renders the entry as accepted by -e.
func (e EnvVar) String() string {
	if e.Passthrough {
		return e.Key
	}
	return e.Key + "=" + e.Value
}

// ParseVolume parses a user supplied "source:destination[:ro]" volume.
func ParseVolume(spec string) (container.Mount, error) {
	m, err := container.ParseMount(spec)
	if err != nil {
		return container.Mount{}, fmt.Errorf("%w %q: %w", ErrInvalidVolume, spec, err)
	}
	return m, nil
}

// ParseVolumes parses every spec, stopping at the first invalid one.
func ParseVolumes(specs []string) ([]container.Mount, error) {
	mounts := make([]container.Mount, 0, len(specs))
	for _, s := range specs {
		m, err := ParseVolume(s)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// ParseEnv parses "KEY=VALUE" or a bare "KEY" passthrough.
func ParseEnv(spec string) (EnvVar, error) {
	key, value, hasValue := strings.Cut(spec, "=")
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t\n") {
		return EnvVar{}, fmt.Errorf("%w %q: expected KEY[=VALUE]", ErrInvalidEnv, spec)
	}
	if !hasValue {
		return EnvVar{Key: key, Passthrough: true}, nil
	}
	return EnvVar{Key: key, Value: value}, nil
}

// ParseEnvs parses every spec, stopping at the first invalid one.
func ParseEnvs(specs []string) ([]EnvVar, error) {
	vars := make([]EnvVar, 0, len(specs))
	for _, s := range specs {
		v, err := ParseEnv(s)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// EnvStrings renders vars for container.RunOptions.
func EnvStrings(vars []EnvVar) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		out = append(out, v.String())
	}
	return out
}
