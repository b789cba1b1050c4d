// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// HostContext describes the host a container invocation originates from.
type HostContext struct {
	// WorkDir is the current working directory.
	WorkDir string
	// Home is the user's home directory.
	Home string
	// TmpDir is the temp base that holds the scratch directory.
	TmpDir string
	// LookupEnv reads host environment variables.
	LookupEnv func(key string) (string, bool)
	// IsSocket reports whether path exists and is a unix socket.
	IsSocket func(path string) bool
}

// FromProcess describes the running process.
func FromProcess() (HostContext, error) {
	wd, err := os.Getwd()
	if err != nil {
		return HostContext{}, fmt.Errorf("resolving working directory: %w", err)
	}

	home, ok := os.LookupEnv("HOME")
	if !ok || home == "" {
		if home, err = os.UserHomeDir(); err != nil {
			return HostContext{}, fmt.Errorf("resolving home directory: %w", err)
		}
	}

	return HostContext{
		WorkDir:   wd,
		Home:      filepath.Clean(home),
		TmpDir:    TempBase(),
		LookupEnv: os.LookupEnv,
		IsSocket:  IsSocket,
	}, nil
}

// TempBase returns the base directory for scratch state: /tmp on darwin,
// where the per-user temp dir is not shared with the container VM, and the
// OS temp dir elsewhere.
func TempBase() string {
	if runtime.GOOS == "darwin" {
		return "/tmp"
	}
	return filepath.Clean(os.TempDir())
}

// IsSocket reports whether path exists and is a unix socket.
func IsSocket(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().Type() == fs.ModeSocket
}

func (h HostContext) lookup(key string) (string, bool) {
	if h.LookupEnv == nil {
		return "", false
	}
	return h.LookupEnv(key)
}

func (h HostContext) isSocket(path string) bool {
	return h.IsSocket != nil && h.IsSocket(path)
}
