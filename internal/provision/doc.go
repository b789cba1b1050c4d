// SPDX-License-Identifier: MPL-2.0

// Package provision prepares the host side of a cosh invocation.
//
// RuntimeProvisioner downloads the pinned static runtime archive once,
// verifies its SHA256 digest and extracts the client binary into the scratch
// directory. WrapperGenerator writes one executable script per command; a
// script delegates to a real binary of the same name when one is on PATH and
// otherwise runs the command image with the composed mounts and environment.
//
// Both are idempotent and safe to call on every invocation.
package provision
