package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "cloudo"

const (
	configFileName = "config.toml"
	tokenFileName  = "token.json"
	cacheFileName  = "snapshot.db"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/cloudo).
// On macOS, uses ~/Library/Application Support/cloudo.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the credential.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/cloudo).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultCacheDir returns the platform-specific directory for the snapshot
// cache. On Linux, respects XDG_CACHE_HOME (defaults to ~/.cache/cloudo).
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CACHE_HOME", filepath.Join(home, ".cache"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Caches", appName)
	default:
		return filepath.Join(home, ".cache", appName)
	}
}

func xdgDir(envVar, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return joinIfDir(DefaultConfigDir(), configFileName)
}

// DefaultTokenPath returns where the credential is stored by default.
func DefaultTokenPath() string {
	return joinIfDir(DefaultDataDir(), tokenFileName)
}

// DefaultCachePath returns where the snapshot cache lives by default.
func DefaultCachePath() string {
	return joinIfDir(DefaultCacheDir(), cacheFileName)
}

func joinIfDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
