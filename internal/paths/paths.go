// Package paths resolves where Riddler keeps its configuration, its
// SQLite data, and local snapshots.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "riddler"

// Files and subdirectories inside the resolved directories.
const (
	ConfigFileName  = "config.yaml"
	SnapshotDirName = "snapshots"
)

// Environment variables that override the platform defaults.
const (
	EnvConfigDir = "RIDDLER_CONFIG_DIR"
	EnvDataDir   = "RIDDLER_DATA_DIR"
)

// platformDir holds platform-detection functions that tests override.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// userDir returns the per-user directory for Riddler. On Linux it honours
// the XDG variable xdgEnv and falls back to ~/<linuxFallback>; elsewhere it
// uses os.UserConfigDir.
func userDir(xdgEnv string, linuxFallback ...string) (string, error) {
	if platformDir.goos == "linux" {
		if xdg := os.Getenv(xdgEnv); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, linuxFallback...), AppName)...), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfigDir returns the platform default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/riddler (fallback ~/.config/riddler)
// macOS:   ~/Library/Application Support/riddler
// Windows: %APPDATA%/riddler
func DefaultConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform default data directory.
//
// Linux:   $XDG_DATA_HOME/riddler (fallback ~/.local/share/riddler)
// macOS and Windows: same as the config directory.
func DefaultDataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir applies flag > RIDDLER_CONFIG_DIR > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config file value > RIDDLER_DATA_DIR >
// DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	return DefaultDataDir()
}

// ConfigFile returns the config file path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// SnapshotDir returns the default local snapshot directory for dataDir.
func SnapshotDir(dataDir string) string {
	return filepath.Join(dataDir, SnapshotDirName)
}
