// SPDX-License-Identifier: MPL-2.0

// Package container builds and executes container runtime invocations
// (docker or podman CLI). It owns the Mount value type, the argv layout of
// a "run" invocation, and the shell rendering of that invocation used by
// generated wrapper scripts.
package container
