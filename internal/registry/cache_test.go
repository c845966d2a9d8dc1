package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

func openTestCache(t *testing.T) *SQLiteCache {
	t.Helper()

	c, err := OpenCache(context.Background(), filepath.Join(t.TempDir(), "state", "snapshot.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { c.Close() })

	return c
}

func TestSQLiteCache_EmptyOnOpen(t *testing.T) {
	c := openTestCache(t)

	records, syncedAt, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.True(t, syncedAt.IsZero())
}

func TestSQLiteCache_ReplaceAndLoad(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 6e6, time.UTC)
	syncedAt := time.Date(2026, 6, 1, 12, 0, 0, 123, time.UTC)

	in := []api.FileRecord{
		{ID: "z", Name: "last-alphabetically.txt", Size: 5, CreatedAt: created, ContentType: "text/plain"},
		{ID: "a", Name: "first.bin", Size: api.SizeUnknown, Locator: "https://cdn.test/secret"},
	}

	require.NoError(t, c.Replace(ctx, in, syncedAt))

	out, gotSynced, err := c.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Server order survives the round trip.
	assert.Equal(t, "z", out[0].ID)
	assert.Equal(t, int64(5), out[0].Size)
	assert.True(t, created.Equal(out[0].CreatedAt))
	assert.Equal(t, "text/plain", out[0].ContentType)

	assert.Equal(t, "a", out[1].ID)
	assert.False(t, out[1].HasSize())
	assert.True(t, out[1].CreatedAt.IsZero())
	assert.Empty(t, out[1].Locator, "locators are never persisted")

	assert.True(t, syncedAt.Equal(gotSynced))
}

func TestSQLiteCache_ReplaceOverwrites(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.Replace(ctx, []api.FileRecord{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}}, now))
	require.NoError(t, c.Replace(ctx, []api.FileRecord{{ID: "2", Name: "two"}}, now))

	out, _, err := c.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ID)
}

func TestSQLiteCache_ZeroTimeClears(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Replace(ctx, []api.FileRecord{{ID: "1", Name: "one"}}, time.Now()))
	require.NoError(t, c.Replace(ctx, nil, time.Time{}))

	out, syncedAt, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, syncedAt.IsZero())
}

func TestSQLiteCache_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	ctx := context.Background()

	c, err := OpenCache(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Replace(ctx, []api.FileRecord{{ID: "keep", Name: "k"}}, time.Now()))
	require.NoError(t, c.Close())

	c, err = OpenCache(ctx, path, nil)
	require.NoError(t, err)

	defer c.Close()

	out, _, err := c.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "keep", out[0].ID)
	assert.Equal(t, path, c.Path())
}

func TestRegistry_WarmFromSQLite(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	lister := &fakeLister{results: []listResult{{records: []api.FileRecord{recA, recB}}}}

	first := New(lister, c, nil)
	_, err := first.Resync(ctx)
	require.NoError(t, err)

	second := New(lister, c, nil)
	require.NoError(t, second.Warm(ctx))
	assert.Equal(t, StateStale, second.State())
	assert.Equal(t, []string{"a", "b"}, []string{second.Snapshot()[0].ID, second.Snapshot()[1].ID})
}
