package daemoncache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/executor"
	"github.com/howth-dev/howth/internal/resolver"
)

func TestResolverCacheInvalidatesOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dep.js")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	c := NewResolverCache()
	key := ResolverKey{Cwd: dir, ParentDir: dir, Specifier: "./dep", Channel: "default"}
	c.Set(key, resolver.Result{Resolved: target})

	_, ok := c.Get(key)
	assert.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(target, []byte("changed"), 0o644))

	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestResolverCacheInvalidatePathViaReverseIndex(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dep.js")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	c := NewResolverCache()
	key := ResolverKey{Cwd: dir, ParentDir: dir, Specifier: "./dep", Channel: "default"}
	c.Set(key, resolver.Result{Resolved: target})

	entries, paths := c.Stats()
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, paths)

	c.InvalidatePath(target)
	_, ok := c.Get(key)
	assert.False(t, ok)

	entries, paths = c.Stats()
	assert.Equal(t, 0, entries)
	assert.Equal(t, 0, paths)
}

func TestBuildCacheRoundTrip(t *testing.T) {
	c := NewBuildCache()
	c.Put("script:build", "hash1", executor.CacheEntry{OK: true})

	e, ok := c.Get("script:build", "hash1")
	assert.True(t, ok)
	assert.True(t, e.OK)

	_, ok = c.Get("script:build", "hash2")
	assert.False(t, ok)
}

func TestBuildCacheInvalidatePath(t *testing.T) {
	c := NewBuildCache()
	c.Put("script:build", "hash1", executor.CacheEntry{OK: true})
	c.RecordInputPath("script:build", "/proj/src/a.ts")

	c.InvalidatePath("/proj/src/a.ts")
	_, ok := c.Get("script:build", "hash1")
	assert.False(t, ok)
}

func TestPackageJSONCacheInvalidatesExplicitly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x"}`), 0o644))

	c := NewPackageJSONCache()
	c.Set(path, nil)
	_, ok := c.Get(path)
	assert.True(t, ok)

	c.Invalidate(path)
	_, ok = c.Get(path)
	assert.False(t, ok)
}
