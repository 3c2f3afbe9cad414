package hashing

import (
	"fmt"

	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/globby"
)

// HashFileInput hashes a single file input (spec §4.1: "files hash their
// content, or a stable missing marker if absent").
func HashFileInput(absPath string) (string, error) {
	return HashFile(absPath)
}

// HashGlobInput hashes a glob input as the ordered sequence of
// (normalized path, content) pairs the pattern matches, rooted at root
// (spec §4.1: "globs hash the ordered sequence of (normalized path,
// content) pairs").
func HashGlobInput(root, pattern string, excludes []string) (string, error) {
	matches, err := globby.Glob(root, []string{pattern}, excludes)
	if err != nil {
		return "", err
	}
	d := NewDigest()
	for _, m := range matches {
		content, err := HashFile(m)
		if err != nil {
			return "", err
		}
		d.WriteString(fs.NormalizePath(m))
		d.WriteString(content)
	}
	return d.Sum(), nil
}

// HashDirInput hashes a directory input as a "**/*" glob rooted at the
// directory (spec §4.1).
func HashDirInput(dir string) (string, error) {
	return HashGlobInput(dir, "**/*", nil)
}

// HashLockfileInput hashes a lockfile input's file contents.
func HashLockfileInput(absPath string) (string, error) {
	return HashFile(absPath)
}

// HashEnvVarInput hashes a single "name=value" env var input.
func HashEnvVarInput(name, value string) string {
	return HashString(fmt.Sprintf("%s=%s", name, value))
}

// HashDepInput hashes a dependency-node reference input, propagating the
// dependency's already-computed node hash (spec §4.1 "Rationale": this is
// what makes invalidation propagate transitively through the graph).
func HashDepInput(depID, depHash string) string {
	return HashString(fmt.Sprintf("dep:%s:%s", depID, depHash))
}
