package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHome = "/home/testuser"

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultCacheDir_NonEmpty(t *testing.T) {
	dir := DefaultCacheDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, "config.toml"))
}

func TestDefaultConfigDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	dir := DefaultConfigDir()
	assert.Contains(t, dir, "Library/Application Support")
}

func TestDefaultDataDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	dir := DefaultDataDir()
	assert.Contains(t, dir, "Library/Application Support")
}

func TestDefaultCacheDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	dir := DefaultCacheDir()
	assert.Contains(t, dir, "Library/Caches")
}

func TestXDGDir_Override(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config", appName), xdgDir("XDG_CONFIG_HOME", filepath.Join(testHome, ".config")))
}

func TestXDGDir_DefaultFallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	os.Unsetenv("XDG_DATA_HOME")

	result := xdgDir("XDG_DATA_HOME", filepath.Join(testHome, ".local", "share"))
	assert.Equal(t, filepath.Join(testHome, ".local", "share", appName), result)
}

func TestDefaultTokenAndCachePaths(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_CACHE_HOME", "/xdg/cache")

	assert.Equal(t, "/xdg/data/cloudo/token.json", DefaultTokenPath())
	assert.Equal(t, "/xdg/cache/cloudo/snapshot.db", DefaultCachePath())
}

func TestJoinIfDir(t *testing.T) {
	assert.Empty(t, joinIfDir("", "config.toml"))
	assert.Equal(t, filepath.Join("a", "b.toml"), joinIfDir("a", "b.toml"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	assert.Equal(t, filepath.Join(home, "x", "token.json"), expandHome("~/x/token.json"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
	assert.Empty(t, expandHome(""))
}
