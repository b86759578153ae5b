// SPDX-License-Identifier: EPL-2.0

// Package config handles application configuration using Viper with TOML
// as the file format.
//
// Configuration is loaded from ~/.config/runcell/config.toml (or the XDG
// equivalent on Linux, ~/Library/Application Support/runcell/config.toml
// on macOS, %APPDATA%\runcell\config.toml on Windows), falling back to
// defaults when no file is present.
package config
