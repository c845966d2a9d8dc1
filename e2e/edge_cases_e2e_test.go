//go:build e2e && e2e_full

package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

// putJSON uploads paths and returns the reported records.
func putJSON(t *testing.T, paths ...string) []map[string]any {
	t.Helper()

	stdout, _ := runCLI(t, append([]string{"put", "--json"}, paths...)...)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	t.Cleanup(func() {
		for _, r := range out {
			if id, ok := r["id"].(string); ok {
				_, _, _ = runCLIRaw("rm", id)
			}
		}
	})

	return out
}

// TestE2E_ZeroByteUpload validates that an empty file is accepted and listed
// with size zero.
func TestE2E_ZeroByteUpload(t *testing.T) {
	local := writeUpload(t, "cloudo-e2e-empty", nil)

	out := putJSON(t, local)
	require.Len(t, out, 1)

	size, ok := out[0]["size"]
	if ok {
		assert.InDelta(t, 0, size, 0)
	}
}

// TestE2E_UnicodeName validates that a decomposed name is uploaded in NFC.
func TestE2E_UnicodeName(t *testing.T) {
	nfd := norm.NFD.String("café-" + time.Now().Format("150405.000000") + ".txt")
	local := filepath.Join(t.TempDir(), nfd)
	require.NoError(t, os.WriteFile(local, []byte("unicode"), 0o600))

	out := putJSON(t, local)
	require.Len(t, out, 1)
	assert.Equal(t, norm.NFC.String(nfd), out[0]["name"])
}

// TestE2E_AmbiguousName validates that two uploads sharing a name cannot be
// removed by name.
func TestE2E_AmbiguousName(t *testing.T) {
	name := "cloudo-e2e-dup-" + time.Now().Format("150405.000000") + ".txt"

	var paths []string

	for _, sub := range []string{"a", "b"} {
		dir := filepath.Join(t.TempDir(), sub)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(sub), 0o600))
		paths = append(paths, p)
	}

	out := putJSON(t, paths...)
	require.Len(t, out, 2)

	_, _, err := runCLIRaw("rm", name)
	require.Error(t, err)

	stdout, _ := runCLI(t, "ls")
	assert.Contains(t, stdout, out[0]["id"])
	assert.Contains(t, stdout, out[1]["id"])
}
