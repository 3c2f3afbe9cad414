// Package fs provides path and filesystem helpers shared by every component:
// absolute path handling, normalized-path formation for hashing (spec §3),
// directory walking, and file copy/link primitives.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// AbsolutePath represents a platform-native absolute path on disk. Every
// internal API that touches the filesystem takes or returns one of these
// rather than a bare string, so callers can't accidentally hand a relative
// path to something that assumes otherwise.
type AbsolutePath string

// CheckedToAbsolutePath validates that s is absolute before wrapping it.
func CheckedToAbsolutePath(s string) (AbsolutePath, error) {
	if filepath.IsAbs(s) {
		return AbsolutePath(s), nil
	}
	return "", fmt.Errorf("%v is not an absolute path", s)
}

// UnsafeToAbsolutePath wraps s without validation. Used when the caller has
// already established s is absolute (e.g. it came from filepath.Abs).
func UnsafeToAbsolutePath(s string) AbsolutePath {
	return AbsolutePath(s)
}

// ResolveUnknownPath returns unknown if it is already absolute, otherwise
// resolves it relative to root.
func ResolveUnknownPath(root AbsolutePath, unknown string) AbsolutePath {
	if filepath.IsAbs(unknown) {
		return AbsolutePath(unknown)
	}
	return root.Join(unknown)
}

// GetCwd returns the process's current working directory, with symlinks
// resolved the way the package managers this system wraps do.
func GetCwd() (AbsolutePath, error) {
	cwdRaw, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	cwdRaw, err = filepath.EvalSymlinks(cwdRaw)
	if err != nil {
		return "", fmt.Errorf("evaluating symlinks in cwd: %w", err)
	}
	return CheckedToAbsolutePath(cwdRaw)
}

func (ap AbsolutePath) String() string { return string(ap) }

// Join appends path segments and returns the resulting absolute path.
func (ap AbsolutePath) Join(args ...string) AbsolutePath {
	return AbsolutePath(filepath.Join(append([]string{string(ap)}, args...)...))
}

// Dir returns the parent directory.
func (ap AbsolutePath) Dir() AbsolutePath { return AbsolutePath(filepath.Dir(string(ap))) }

// Base returns the last path element.
func (ap AbsolutePath) Base() string { return filepath.Base(string(ap)) }

// MkdirAll creates the directory and any missing parents.
func (ap AbsolutePath) MkdirAll(mode os.FileMode) error {
	return os.MkdirAll(string(ap), mode)
}

// FileExists reports whether the path exists and is a regular file.
func (ap AbsolutePath) FileExists() bool { return FileExists(string(ap)) }

// Exists reports whether anything (file, dir, symlink) exists at the path.
func (ap AbsolutePath) Exists() bool { return PathExists(string(ap)) }

// ReadFile reads the whole file.
func (ap AbsolutePath) ReadFile() ([]byte, error) { return os.ReadFile(string(ap)) }

// WriteFile writes the whole file, overwriting any existing content.
func (ap AbsolutePath) WriteFile(contents []byte, mode os.FileMode) error {
	return os.WriteFile(string(ap), contents, mode)
}

// Lstat is the AbsolutePath wrapper for os.Lstat.
func (ap AbsolutePath) Lstat() (os.FileInfo, error) { return os.Lstat(string(ap)) }

// Stat is the AbsolutePath wrapper for os.Stat.
func (ap AbsolutePath) Stat() (os.FileInfo, error) { return os.Stat(string(ap)) }

// RelativeTo returns the relative path from ap to other.
func (ap AbsolutePath) RelativeTo(other AbsolutePath) (string, error) {
	return filepath.Rel(string(ap), string(other))
}

// HasPrefixDir reports whether ap is equal to or nested under root.
func (ap AbsolutePath) HasPrefixDir(root AbsolutePath) bool {
	rel, err := filepath.Rel(string(root), string(ap))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !hasDotDotPrefix(rel))
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// NormalizePath renders an absolute or relative filesystem path into the
// canonical form used for hashing and serialization (spec §3): separators
// converted to '/', any trailing '/' stripped, case preserved.
func NormalizePath(p string) string {
	n := filepath.ToSlash(p)
	for len(n) > 1 && n[len(n)-1] == '/' {
		n = n[:len(n)-1]
	}
	return n
}
