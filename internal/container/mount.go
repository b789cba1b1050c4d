// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMount is the sentinel error wrapped by InvalidMountError.
	ErrInvalidMount = errors.New("invalid mount")

	// ErrRootMountTarget is returned when a mount would bind over the
	// container filesystem root.
	ErrRootMountTarget = errors.New("mount target is the filesystem root")
)

type (
	// Mount describes one bind mount of a host path into the container.
	Mount struct {
		Source   string
		Target   string
		ReadOnly bool
	}

	// InvalidMountError is returned when a Mount has one or more invalid fields.
	InvalidMountError struct {
		Value     Mount
		FieldErrs []error
	}
)

// Error implements the error interface.
func (e *InvalidMountError) Error() string {
	return fmt.Sprintf("invalid mount %s:%s: %v", e.Value.Source, e.Value.Target, errors.Join(e.FieldErrs...))
}

// Unwrap returns ErrInvalidMount for errors.Is() compatibility.
func (e *InvalidMountError) Unwrap() error { return ErrInvalidMount }

// Validate checks that source and target are set and that the target is not "/".
func (m Mount) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Source) == "" {
		errs = append(errs, errors.New("source must be non-empty"))
	}
	switch strings.TrimSpace(m.Target) {
	case "":
		errs = append(errs, errors.New("target must be non-empty"))
	case "/":
		errs = append(errs, ErrRootMountTarget)
	}
	if len(errs) > 0 {
		return &InvalidMountError{Value: m, FieldErrs: errs}
	}
	return nil
}

// String returns the mount in "source:target[:ro]" format, as accepted by -v.
func (m Mount) String() string {
	s := m.Source + ":" + m.Target
	if m.ReadOnly {
		s += ":ro"
	}
	return s
}

// ParseMount parses "source:target[:ro|rw]".
func ParseMount(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Mount{}, fmt.Errorf("%w %q: expected source:destination[:ro]", ErrInvalidMount, spec)
	}

	m := Mount{Source: parts[0], Target: parts[1]}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return Mount{}, fmt.Errorf("%w %q: unknown option %q", ErrInvalidMount, spec, parts[2])
		}
	}

	if err := m.Validate(); err != nil {
		return Mount{}, err
	}
	return m, nil
}
