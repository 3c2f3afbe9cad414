package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, p, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
}

func TestResolveRelativeWithExtensionProbe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "util.ts"), "export {}")

	res := Resolve(Request{Cwd: dir, ParentDir: dir, Specifier: "./util", Kind: Import})
	require.Equal(t, Reason(""), res.Reason)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "util.ts")), res.Resolved)
}

func TestResolveExportsPattern(t *testing.T) {
	dir := t.TempDir()
	libDir := filepath.Join(dir, "node_modules", "lib")
	writeFile(t, filepath.Join(libDir, "package.json"), `{"name":"lib","exports":{"./*":"./dist/*.js"}}`)
	writeFile(t, filepath.Join(libDir, "dist", "utils.js"), "module.exports = {}")

	res := Resolve(Request{Cwd: dir, ParentDir: dir, Specifier: "lib/utils", Kind: Import})
	require.Equal(t, Reason(""), res.Reason)
	assert.Equal(t, filepath.ToSlash(filepath.Join(libDir, "dist", "utils.js")), res.Resolved)

	missing := Resolve(Request{Cwd: dir, ParentDir: dir, Specifier: "lib/missing", Kind: Import})
	assert.Equal(t, ReasonExportsTargetMissing, missing.Reason)
}

func TestResolveUnsupportedScheme(t *testing.T) {
	res := Resolve(Request{Specifier: "node:fs"})
	assert.Equal(t, ReasonUnsupportedScheme, res.Reason)

	res = Resolve(Request{Specifier: "https://example.com/x.js"})
	assert.Equal(t, ReasonUnsupportedScheme, res.Reason)
}

func TestResolveEmptySpecifier(t *testing.T) {
	res := Resolve(Request{Specifier: ""})
	assert.Equal(t, ReasonSpecifierInvalid, res.Reason)
}

func TestResolveBareSpecifierWithMainField(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "node_modules", "pkg")
	writeFile(t, filepath.Join(pkgDir, "package.json"), `{"name":"pkg","main":"index.js"}`)
	writeFile(t, filepath.Join(pkgDir, "index.js"), "module.exports = {}")

	res := Resolve(Request{Cwd: dir, ParentDir: dir, Specifier: "pkg", Kind: Require})
	require.Equal(t, Reason(""), res.Reason)
	assert.Equal(t, filepath.ToSlash(filepath.Join(pkgDir, "index.js")), res.Resolved)
}

func TestResolveNodeModulesNotFound(t *testing.T) {
	dir := t.TempDir()
	res := Resolve(Request{Cwd: dir, ParentDir: dir, Specifier: "nonexistent-pkg", Kind: Import})
	assert.Equal(t, ReasonNodeModulesNotFound, res.Reason)
}
