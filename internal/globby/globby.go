// Package globby implements the deterministic glob walker described in
// spec §4.1: traverse a root directory, exclude a fixed set of paths plus
// caller-supplied patterns, filter against the include pattern, and sort
// matches by normalized path before returning them.
package globby

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	ifs "github.com/howth-dev/howth/internal/fs"
)

// DefaultExcludes is the fixed set of paths the walker always excludes,
// regardless of caller-supplied patterns (spec §4.1).
var DefaultExcludes = []string{"node_modules", ".git", ".howth"}

var osIOFS = afero.NewIOFS(afero.NewOsFs())

// Glob expands includePatterns rooted at basePath, honoring DefaultExcludes
// plus excludePatterns, and returns normalized, sorted, deduplicated
// matches. Directories are never returned — only files.
func Glob(basePath string, includePatterns, excludePatterns []string) ([]string, error) {
	excludes := append(append([]string(nil), DefaultExcludes...), excludePatterns...)
	excludeMatchers := make([]string, 0, len(excludes))
	for _, e := range excludes {
		excludeMatchers = append(excludeMatchers, filepath.ToSlash(filepath.Join(basePath, e))+"/**")
	}

	seen := map[string]struct{}{}
	for _, pattern := range includePatterns {
		full := filepath.ToSlash(filepath.Join(basePath, pattern))
		err := doublestar.GlobWalk(osIOFS, relToFSRoot(full), func(path string, d fs.DirEntry) error {
			abs := absFromFSRoot(path)
			if d.IsDir() {
				return nil
			}
			normalized := ifs.NormalizePath(abs)
			for _, ex := range excludeMatchers {
				if ok, _ := doublestar.Match(relToFSRoot(ex), relToFSRoot(abs)); ok {
					return nil
				}
			}
			seen[normalized] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// relToFSRoot strips the leading '/' that afero's IOFS requires patterns
// and walked paths to omit (io/fs paths are always relative to the root of
// the fs.FS, even when that root is the OS '/').
func relToFSRoot(p string) string {
	return strings.TrimPrefix(p, "/")
}

func absFromFSRoot(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
