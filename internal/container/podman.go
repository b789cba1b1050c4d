// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"os/exec"
	"slices"
	"strings"
)

// PodmanEngine implements Engine using the podman CLI.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a podman engine resolved from PATH. Rootless runs
// keep the caller's uid so files written to bind mounts stay owned by the user.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	allOpts := append([]BaseCLIEngineOption{WithRunArgsTransformer(keepUserNamespace)}, opts...)
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(string(EngineTypePodman), path, allOpts...),
	}
}

// Available checks that podman answers.
func (e *PodmanEngine) Available(ctx context.Context) error {
	return e.version(ctx, "{{.Version}}")
}

// keepUserNamespace inserts --userns=keep-id right after "run" unless a
// userns flag is already present.
func keepUserNamespace(args []string) []string {
	if len(args) == 0 || args[0] != "run" {
		return args
	}
	if slices.ContainsFunc(args, func(a string) bool { return strings.HasPrefix(a, "--userns") }) {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, "run", "--userns=keep-id")
	return append(out, args[1:]...)
}
