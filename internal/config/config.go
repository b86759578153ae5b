// Package config handles runcell's workspace configuration using Viper,
// adapted from the teacher's loader: a TOML file discovered in the XDG
// config dir and the current directory, with defaults for every field so a
// missing file still yields a usable configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for the config directory.
	AppName = "runcell"
	// ConfigFileName is the config file's base name (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file's extension.
	ConfigFileExt = "toml"
)

// SecretCacheConfig configures the secret cache's idle eviction.
type SecretCacheConfig struct {
	// IdleTTLSeconds is how long an unused secret stays cached.
	IdleTTLSeconds int `toml:"idle_ttl_seconds" mapstructure:"idle_ttl_seconds"`
	// SweepIntervalSeconds is how often the eviction sweep runs.
	SweepIntervalSeconds int `toml:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
}

// ExecLogConfig configures the execution log SQLite actor.
type ExecLogConfig struct {
	// Path overrides the default <config dir>/exec_log.db location.
	Path string `toml:"path" mapstructure:"path"`
}

// SSHConfig configures the SSH connection pool.
type SSHConfig struct {
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds" mapstructure:"connect_timeout_seconds"`
}

// UIConfig configures the CLI's presentation.
type UIConfig struct {
	// ColorScheme sets the color scheme ("auto", "dark", "light")
	ColorScheme string `toml:"color_scheme" mapstructure:"color_scheme"`
	// Verbose enables verbose output
	Verbose bool `toml:"verbose" mapstructure:"verbose"`
}

// Config holds runcell's workspace-level configuration.
type Config struct {
	// WorkspaceSearchPaths contains additional directories to index for runbooks
	WorkspaceSearchPaths []string          `toml:"workspace_search_paths" mapstructure:"workspace_search_paths"`
	SecretCache          SecretCacheConfig `toml:"secret_cache" mapstructure:"secret_cache"`
	ExecLog              ExecLogConfig     `toml:"exec_log" mapstructure:"exec_log"`
	SSH                  SSHConfig         `toml:"ssh" mapstructure:"ssh"`
	UI                   UIConfig          `toml:"ui" mapstructure:"ui"`
}

var (
	// globalConfig holds the loaded configuration
	globalConfig *Config
	// configPath stores the path where config was loaded from
	configPath string
)

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		WorkspaceSearchPaths: []string{},
		SecretCache: SecretCacheConfig{
			IdleTTLSeconds:       15 * 60,
			SweepIntervalSeconds: 60,
		},
		ExecLog: ExecLogConfig{},
		SSH: SSHConfig{
			ConnectTimeoutSeconds: 10,
		},
		UI: UIConfig{
			ColorScheme: "auto",
			Verbose:     false,
		},
	}
}

// ConfigDir returns runcell's configuration directory.
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ExecLogPath returns the configured execution log path, defaulting to
// <config dir>/exec_log.db.
func ExecLogPath(cfg *Config) (string, error) {
	if cfg.ExecLog.Path != "" {
		return cfg.ExecLog.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exec_log.db"), nil
}

// Load reads and parses the configuration file
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigFileExt)

	cfgDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	v.AddConfigPath(cfgDir)
	v.AddConfigPath(".")

	defaults := DefaultConfig()
	v.SetDefault("workspace_search_paths", defaults.WorkspaceSearchPaths)
	v.SetDefault("secret_cache.idle_ttl_seconds", defaults.SecretCache.IdleTTLSeconds)
	v.SetDefault("secret_cache.sweep_interval_seconds", defaults.SecretCache.SweepIntervalSeconds)
	v.SetDefault("ssh.connect_timeout_seconds", defaults.SSH.ConnectTimeoutSeconds)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			globalConfig = defaults
			return globalConfig, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	configPath = v.ConfigFileUsed()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// Get returns the currently loaded configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			return DefaultConfig()
		}
		return cfg
	}
	return globalConfig
}

// ConfigFilePath returns the path to the config file
func ConfigFilePath() string {
	return configPath
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0755)
}

// CreateDefaultConfig creates a default config file if it doesn't exist
func CreateDefaultConfig() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	if _, err := os.Stat(cfgPath); err == nil {
		return nil // File exists
	}

	defaults := DefaultConfig()
	data, err := toml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	header := []byte(`# runcell configuration file
# See the project documentation for the full set of keys.

`)

	if err := os.WriteFile(cfgPath, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes the current configuration to file
func Save(cfg *Config) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	globalConfig = cfg
	return nil
}

// Reset clears the cached configuration
func Reset() {
	globalConfig = nil
	configPath = ""
}
