package pubmed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := testCache(t, time.Hour)
	ctx := context.Background()

	_, ok := c.Get(ctx, "https://example/esearch?term=x")
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "https://example/esearch?term=x", []byte(`{"hit":1}`)))

	body, ok := c.Get(ctx, "https://example/esearch?term=x")
	require.True(t, ok)
	assert.Equal(t, `{"hit":1}`, string(body))

	_, ok = c.Get(ctx, "https://example/esearch?term=y")
	assert.False(t, ok, "different URLs never collide")
}

func TestCache_Upsert(t *testing.T) {
	c := testCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u", []byte("old")))
	require.NoError(t, c.Put(ctx, "u", []byte("new")))

	body, ok := c.Get(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, "new", string(body))
}

func TestCache_RespectsTTL(t *testing.T) {
	c := testCache(t, time.Second)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u", []byte("body")))

	// Backdate the entry past the TTL.
	_, err := c.db.ExecContext(ctx,
		"UPDATE eutils_cache SET fetched_at = datetime('now', '-1 hour')")
	require.NoError(t, err)

	_, ok := c.Get(ctx, "u")
	assert.False(t, ok)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c := testCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u", []byte("body")))
	_, err := c.db.ExecContext(ctx,
		"UPDATE eutils_cache SET fetched_at = datetime('now', '-100 days')")
	require.NoError(t, err)

	_, ok := c.Get(ctx, "u")
	assert.True(t, ok)
}
