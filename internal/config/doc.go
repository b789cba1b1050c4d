// SPDX-License-Identifier: MPL-2.0

// Package config loads cosh configuration through Viper with CUE as the file format.
//
// The configuration file is config.cue in the XDG config directory
// ($XDG_CONFIG_HOME/cosh, usually ~/.config/cosh) unless a path is given
// explicitly. Files are validated against the embedded #Config schema
// (config_schema.cue) before they are merged over the defaults, and
// COSH_* environment variables override both.
package config
