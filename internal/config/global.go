// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the XDG lookup, which is resolved once at
// process start and ignores later changes to XDG_CONFIG_HOME.
var configDirOverride string

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride points ConfigDir at dir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
