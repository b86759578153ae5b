// SPDX-License-Identifier: EPL-2.0

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func setHomeDirEnv(t *testing.T, dir string) func() {
	t.Helper()
	envVar := "HOME"
	if runtime.GOOS == "windows" {
		envVar = "USERPROFILE"
	}
	original, had := os.LookupEnv(envVar)
	os.Setenv(envVar, dir)
	return func() {
		if had {
			os.Setenv(envVar, original)
		} else {
			os.Unsetenv(envVar)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Empty(t, cfg.WorkspaceSearchPaths)
	require.Equal(t, 15*60, cfg.SecretCache.IdleTTLSeconds)
	require.Equal(t, 60, cfg.SecretCache.SweepIntervalSeconds)
	require.Equal(t, 10, cfg.SSH.ConnectTimeoutSeconds)
	require.Equal(t, "auto", cfg.UI.ColorScheme)
	require.False(t, cfg.UI.Verbose)
}

func TestConfigDir(t *testing.T) {
	original, had := os.LookupEnv("XDG_CONFIG_HOME")
	defer func() {
		if had {
			os.Setenv("XDG_CONFIG_HOME", original)
		} else {
			os.Unsetenv("XDG_CONFIG_HOME")
		}
	}()

	if runtime.GOOS == "linux" {
		os.Setenv("XDG_CONFIG_HOME", "/tmp/test-xdg-config")
		dir, err := ConfigDir()
		require.NoError(t, err)
		require.Equal(t, filepath.Join("/tmp/test-xdg-config", AppName), dir)

		os.Unsetenv("XDG_CONFIG_HOME")
		dir, err = ConfigDir()
		require.NoError(t, err)
		require.Contains(t, dir, AppName)
	}
}

func TestLoadFallsBackToDefaultsWithoutFile(t *testing.T) {
	Reset()
	restore := setHomeDirEnv(t, t.TempDir())
	defer restore()
	defer Reset()

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndReload(t *testing.T) {
	Reset()
	restore := setHomeDirEnv(t, t.TempDir())
	defer restore()
	defer Reset()

	cfg := DefaultConfig()
	cfg.UI.Verbose = true
	cfg.WorkspaceSearchPaths = []string{"/tmp/runbooks"}

	require.NoError(t, EnsureConfigDir())
	require.NoError(t, Save(cfg))

	Reset()
	reloaded, err := Load()
	require.NoError(t, err)
	require.True(t, reloaded.UI.Verbose)
	require.Equal(t, []string{"/tmp/runbooks"}, reloaded.WorkspaceSearchPaths)
}

func TestExecLogPathDefaultsUnderConfigDir(t *testing.T) {
	restore := setHomeDirEnv(t, t.TempDir())
	defer restore()

	cfg := DefaultConfig()
	path, err := ExecLogPath(cfg)
	require.NoError(t, err)
	require.Equal(t, "exec_log.db", filepath.Base(path))

	cfg.ExecLog.Path = "/custom/path/exec.db"
	path, err = ExecLogPath(cfg)
	require.NoError(t, err)
	require.Equal(t, "/custom/path/exec.db", path)
}
