package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDefault_WritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, CreateDefault(path, "https://files.example.com/api"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "# cloudo configuration")
	assert.Contains(t, content, `base_url = "https://files.example.com/api"`)
	assert.Contains(t, content, `# parallel_uploads = 4`)
}

func TestCreateDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, CreateDefault(path, ""))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestCreateDefault_RefusesOverwrite(t *testing.T) {
	path := writeTestConfig(t, "[logging]\nlog_level = \"info\"\n")

	err := CreateDefault(path, "")
	require.ErrorIs(t, err, ErrConfigExists)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `log_level = "info"`)
}

func TestCreateDefault_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.toml")

	require.NoError(t, CreateDefault(path, ""))
	assert.FileExists(t, path)
}

func TestSetKey_InsertsUnderSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, CreateDefault(path, ""))

	require.NoError(t, SetKey(path, "transfers.parallel_uploads", "8"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Transfers.ParallelUploads)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Bandwidth cap shared by all uploads", "comments survive")
}

func TestSetKey_UpdatesExistingKey(t *testing.T) {
	path := writeTestConfig(t, "# mine\n[logging]\nlog_level = \"info\"\nlog_format = \"text\"\n")

	require.NoError(t, SetKey(path, "logging.log_level", "debug"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\n[logging]\nlog_level = \"debug\"\nlog_format = \"text\"\n", string(data))
}

func TestSetKey_AppendsMissingSection(t *testing.T) {
	path := writeTestConfig(t, "[server]\nbase_url = \"http://a.example.com\"\n")

	require.NoError(t, SetKey(path, "cache.enabled", "false"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "http://a.example.com", cfg.Server.BaseURL)
}

func TestSetKey_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, SetKey(path, "server.base_url", "https://b.example.com/api"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com/api", cfg.Server.BaseURL)
}

func TestSetKey_Rejections(t *testing.T) {
	tests := []struct {
		name, key, value, wantErr string
	}{
		{"unknown key with suggestion", "logging.log_levl", "info", `did you mean "logging.log_level"`},
		{"no section", "parallel_uploads", "4", "unknown config key"},
		{"non-integer", "network.max_retries", "many", "expected an integer"},
		{"non-bool", "cache.enabled", "maybe", "expected true or false"},
		{"out of range", "transfers.parallel_uploads", "99", "parallel_uploads"},
		{"invalid enum", "logging.log_format", "xml", "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := "[logging]\nlog_level = \"info\"\n"
			path := writeTestConfig(t, original)

			err := SetKey(path, tt.key, tt.value)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, original, string(data), "file untouched on error")
		})
	}
}

func TestAtomicWriteFile_SetsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on Windows")
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, atomicWriteFile(path, []byte("x = 1\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePermissions), info.Mode().Perm())
}

func TestAtomicWriteFile_InvalidDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	err := atomicWriteFile(filepath.Join(blocker, "config.toml"), []byte("x"))
	assert.Error(t, err)
}
