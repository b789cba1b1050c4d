// SPDX-License-Identifier: MPL-2.0

// Package hostenv composes the bind mounts and environment variables of a
// command container from an explicit description of the host.
//
// Nothing in this package reads process state directly. HostContext carries
// the working directory, home, temp base and environment lookups; FromProcess
// builds one from the running process for the CLI.
package hostenv
