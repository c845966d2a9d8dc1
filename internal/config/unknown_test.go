package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	path := writeTestConfig(t, `
unknown_section = "value"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoad_UnknownKey_InSection(t *testing.T) {
	//nolint:misspell // intentional typo to test unknown key detection
	path := writeTestConfig(t, "[transfers]\nparralel_uploads = 4\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), "parallel_uploads")
}

func TestLoad_UnknownKey_SectionTypo(t *testing.T) {
	path := writeTestConfig(t, "[netwrok]\nmax_retries = 2\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean section [network]")
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[cache]\ncompletely_unrelated_setting = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoad_UnknownKey_AllReported(t *testing.T) {
	path := writeTestConfig(t, "[server]\nbase_ulr = \"x\"\n\n[logging]\nlog_levle = \"info\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"base_url"`)
	assert.Contains(t, err.Error(), `"log_level"`)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
		{"log_levle", "log_level", 2},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch_Found(t *testing.T) {
	assert.Equal(t, "base_url", closestMatch("base_ur", knownKeys["server"]))
}

func TestClosestMatch_NotFound(t *testing.T) {
	assert.Empty(t, closestMatch("zzzzzzzzzz", knownKeys["server"]))
}

func TestKnownSections_Sorted(t *testing.T) {
	assert.Equal(t, []string{"cache", "logging", "network", "server", "transfers"}, knownSections)
}
