package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/fs"
)

func hashOf(content string) string { return "h-" + content }

func TestLinkMaterializesLayout(t *testing.T) {
	dir := t.TempDir()
	storeRoot := fs.UnsafeToAbsolutePath(filepath.Join(dir, "store"))
	store := &ContentStore{Root: storeRoot}

	aPkgJSON := `{"name":"a","version":"1.0.0"}`
	require.NoError(t, store.Put(hashOf(aPkgJSON), []byte(aPkgJSON)))
	require.NoError(t, store.Put(hashOf("a index"), []byte("module.exports = {}")))

	bPkgJSON := `{"name":"b","version":"2.0.0"}`
	require.NoError(t, store.Put(hashOf(bPkgJSON), []byte(bPkgJSON)))

	packages := map[string]*Package{
		"a@1.0.0": {
			Name:    "a",
			Version: "1.0.0",
			Files: FileManifest{
				"package.json": hashOf(aPkgJSON),
				"index.js":     hashOf("a index"),
			},
			Bin: map[string]string{"a-cli": "index.js"},
		},
		"b@2.0.0": {
			Name:         "b",
			Version:      "2.0.0",
			Files:        FileManifest{"package.json": hashOf(bPkgJSON)},
			Dependencies: map[string]string{"a": "a@1.0.0"},
		},
	}

	root := fs.UnsafeToAbsolutePath(t.TempDir())
	l := &Linker{Store: store}
	require.NoError(t, l.Link(root, packages, map[string]string{"a": "a@1.0.0", "b": "b@2.0.0"}))

	assert.FileExists(t, root.Join("node_modules", ".pnpm", "a@1.0.0", "node_modules", "a", "index.js").String())

	topLevelA, err := os.Readlink(root.Join("node_modules", "a").String())
	require.NoError(t, err)
	assert.Contains(t, topLevelA, filepath.Join(".pnpm", "a@1.0.0", "node_modules", "a"))

	bDepLink, err := os.Readlink(root.Join("node_modules", ".pnpm", "b@2.0.0", "node_modules", "a").String())
	require.NoError(t, err)
	assert.Contains(t, bDepLink, filepath.Join(".pnpm", "a@1.0.0", "node_modules", "a"))

	binLink := root.Join("node_modules", ".bin", "a-cli").String()
	_, err = os.Lstat(binLink)
	require.NoError(t, err)
}

func TestKeyRewritesScopedNames(t *testing.T) {
	assert.Equal(t, "@scope+name@1.0.0", Key("@scope/name", "1.0.0"))
	assert.Equal(t, "plain@1.0.0", Key("plain", "1.0.0"))
}

func TestContentStoreListReportsEveryBlob(t *testing.T) {
	storeRoot := fs.UnsafeToAbsolutePath(t.TempDir())
	store := &ContentStore{Root: storeRoot}

	require.NoError(t, store.Put("aaa", []byte("hello")))
	require.NoError(t, store.Put("bbb", []byte("world!")))

	blobs, err := store.List()
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, "aaa", blobs[0].Hash)
	assert.Equal(t, int64(5), blobs[0].Size)
	assert.Equal(t, "bbb", blobs[1].Hash)
	assert.Equal(t, int64(6), blobs[1].Size)
}

func TestContentStorePruneRemovesOnlyUnlinkedBlobs(t *testing.T) {
	storeRoot := fs.UnsafeToAbsolutePath(t.TempDir())
	store := &ContentStore{Root: storeRoot}

	require.NoError(t, store.Put("linked", []byte("still used")))
	require.NoError(t, store.Put("orphan", []byte("nobody wants me")))

	// Materialize "linked" into a fake node_modules tree via the same
	// hard-link path Linker.linkOne uses, so its nlink count is 2.
	dest := filepath.Join(t.TempDir(), "node_modules", "pkg", "index.js")
	require.NoError(t, fs.EnsureDir(dest))
	require.NoError(t, fs.LinkOrCopyFile(store.pathFor("linked").String(), dest, 0o644))

	removed, freed, err := store.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, int64(len("nobody wants me")), freed)

	assert.FileExists(t, store.pathFor("linked").String())
	_, statErr := os.Stat(store.pathFor("orphan").String())
	assert.True(t, os.IsNotExist(statErr))
}
