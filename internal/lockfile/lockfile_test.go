package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/pkgresolve"
)

func samplePkg() (*fs.PackageJSON, map[string]*pkgresolve.Resolved) {
	pkg := &fs.PackageJSON{
		Name:    "demo",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"a": "^1.0.0",
			"b": "^2.0.0",
		},
	}
	resolved := map[string]*pkgresolve.Resolved{
		"a@1.0.0": {Name: "a", Version: "1.0.0"},
		"b@2.0.0": {Name: "b", Version: "2.0.0", Dependencies: map[string]string{"a": "^1.0.0"}},
	}
	return pkg, resolved
}

func TestBuildAndValidate(t *testing.T) {
	pkg, resolved := samplePkg()
	lf, err := Build(pkg, resolved, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, lf.Validate())
	assert.Equal(t, "a@1.0.0", lf.Dependencies["a"].Resolved)
	assert.Equal(t, []string{"a@1.0.0", "b@2.0.0"}, lf.SortedPackageKeys())
}

func TestWriteReadRoundTrip(t *testing.T) {
	pkg, resolved := samplePkg()
	lf, err := Build(pkg, resolved, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	dir := t.TempDir()
	path := fs.UnsafeToAbsolutePath(filepath.Join(dir, "howth.lock"))
	require.NoError(t, lf.Write(path))

	read, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, lf.Root, read.Root)
	assert.Equal(t, len(lf.Packages), len(read.Packages))
}

func TestReadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	path := fs.UnsafeToAbsolutePath(filepath.Join(dir, "howth.lock"))
	future := &Lockfile{LockfileVersion: SchemaVersion + 1, Packages: map[string]*Package{}}
	require.NoError(t, future.Write(path))

	_, err := Read(path)
	assert.ErrorAs(t, err, new(*ErrVersionMismatch))
}

func TestValidateCatchesDanglingEdge(t *testing.T) {
	lf := &Lockfile{
		Packages: map[string]*Package{
			"a@1.0.0": {Dependencies: map[string]string{"b": "b@9.9.9"}},
		},
	}
	err := lf.Validate()
	assert.Error(t, err)
}

func TestDeterministicSerialization(t *testing.T) {
	pkg, resolved := samplePkg()
	lf1, err := Build(pkg, resolved, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	lf2, err := Build(pkg, resolved, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	b1, err := lf1.Marshal()
	require.NoError(t, err)
	b2, err := lf2.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}
