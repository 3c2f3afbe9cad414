// Package linker implements spec §4.4: materializing a lockfile's resolved
// packages into <root>/node_modules using a pnpm-style on-disk layout, with
// package contents hard-linked from a content-addressed cache. Grounded on
// the teacher's internal/packagemanager (which shells out to pnpm/npm/yarn
// rather than implementing linking itself) for the on-disk layout
// conventions, and internal/fs/copy_file.go for the hard-link-with-copy-
// fallback primitive this package calls directly.
package linker

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/howth-dev/howth/internal/fs"
)

// ErrorCode is one of spec §4.4's failure modes.
type ErrorCode string

const (
	ErrPkgLinkFailed       ErrorCode = "PKG_LINK_FAILED"
	ErrNodeModulesWriteFailed ErrorCode = "NODE_MODULES_WRITE_FAILED"
)

// LinkError wraps a failure with its code and the package/path involved.
type LinkError struct {
	Code ErrorCode
	Key  string
	Path string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Code, e.Key, e.Path, e.Err)
}
func (e *LinkError) Unwrap() error { return e.Err }

// Key rewrites a "<name>@<version>" pair into the .pnpm directory key used
// on disk: scoped packages have their "/" replaced with "+" (spec §4.4
// "Key format").
func Key(name, version string) string {
	return strings.Replace(name, "/", "+", 1) + "@" + version
}

// FileManifest maps a package's relative file paths to content hashes in a
// ContentStore.
type FileManifest map[string]string

// Package is everything the linker needs about one resolved package:
// identity, its extracted file manifest, its dependency edges (by "name@version"
// key into the same Package set), and its bin entries.
type Package struct {
	Name         string
	Version      string
	Files        FileManifest
	Dependencies map[string]string // depName -> "name@version" key
	Bin          map[string]string // binName -> relative path within the package
}

// ContentStore is the content-addressed global package cache: one file per
// unique content hash, under <root>/<hash[:2]>/<hash>.
type ContentStore struct {
	Root fs.AbsolutePath
}

func (cs *ContentStore) pathFor(hash string) fs.AbsolutePath {
	if len(hash) < 2 {
		return cs.Root.Join(hash)
	}
	return cs.Root.Join(hash[:2], hash)
}

// Put stores content under the given hash if not already present; it does
// not compute or check the hash itself. Callers that already know the hash (e.g. from a prior blake3
// computation during extraction) can skip straight to materialization.
func (cs *ContentStore) Put(hash string, content []byte) error {
	dest := cs.pathFor(hash)
	if dest.FileExists() {
		return nil
	}
	if err := dest.Dir().MkdirAll(0o755); err != nil {
		return err
	}
	return fs.WriteFileAtomic(dest.String(), content, 0o644)
}

// Blob describes one entry in the content store.
type Blob struct {
	Hash string
	Size int64
}

// List walks the store and returns every blob on disk, sorted by hash.
func (cs *ContentStore) List() ([]Blob, error) {
	var blobs []Blob
	if !fs.IsDirectory(cs.Root.String()) {
		return blobs, nil
	}
	err := fs.WalkMode(cs.Root.String(), func(name string, isDir bool, mode os.FileMode) error {
		if isDir || !mode.IsRegular() {
			return nil
		}
		info, statErr := os.Lstat(name)
		if statErr != nil {
			return nil
		}
		blobs = append(blobs, Blob{Hash: filepath.Base(name), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Hash < blobs[j].Hash })
	return blobs, nil
}

// Prune removes every blob whose hard-link count is 1, i.e. blobs not
// linked into any project's node_modules (spec §4.4's hard-link
// materialization means a still-used blob always has nlink >= 2). Returns
// the count and total size of blobs removed.
func (cs *ContentStore) Prune() (removed int, freedBytes int64, err error) {
	blobs, err := cs.List()
	if err != nil {
		return 0, 0, err
	}
	for _, b := range blobs {
		path := cs.pathFor(b.Hash).String()
		nlink, linkErr := fs.LinkCount(path)
		if linkErr != nil {
			continue
		}
		if nlink > 1 {
			continue
		}
		if rmErr := os.Remove(path); rmErr != nil {
			continue
		}
		removed++
		freedBytes += b.Size
	}
	return removed, freedBytes, nil
}

// Linker materializes resolved packages into a project's node_modules tree.
type Linker struct {
	Store *ContentStore
}

// Link builds node_modules/.pnpm/<key>/node_modules/<name> for every entry
// in packages, a top-level symlink per name in topLevel, and .bin shims for
// every declared binary (spec §4.4 "On-disk layout", "Binary linking").
func (l *Linker) Link(root fs.AbsolutePath, packages map[string]*Package, topLevel map[string]string) error {
	nodeModules := root.Join("node_modules")
	pnpmDir := nodeModules.Join(".pnpm")
	binDir := nodeModules.Join(".bin")

	if err := pnpmDir.MkdirAll(0o755); err != nil {
		return &LinkError{Code: ErrNodeModulesWriteFailed, Path: pnpmDir.String(), Err: err}
	}
	if err := binDir.MkdirAll(0o755); err != nil {
		return &LinkError{Code: ErrNodeModulesWriteFailed, Path: binDir.String(), Err: err}
	}

	keys := make([]string, 0, len(packages))
	for k := range packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pkg := packages[key]
		if err := l.linkOne(pnpmDir, key, pkg, packages); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(topLevel))
	for n := range topLevel {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		key := topLevel[name]
		pkg, ok := packages[key]
		if !ok {
			continue
		}
		target := pnpmDir.Join(Key(pkg.Name, pkg.Version), "node_modules", pkg.Name)
		link := nodeModules.Join(name)
		if err := fs.ReplaceSymlink(target.String(), link.String()); err != nil {
			return &LinkError{Code: ErrPkgLinkFailed, Key: key, Path: link.String(), Err: err}
		}
	}

	return l.linkBins(binDir, pnpmDir, packages)
}

// linkOne materializes a single package's directory inside .pnpm,
// hard-linking its files from the content store and symlinking its
// dependency edges, skipping re-materialization when package.json already
// matches by inode (spec §4.4 "Idempotence").
func (l *Linker) linkOne(pnpmDir fs.AbsolutePath, key string, pkg *Package, all map[string]*Package) error {
	dirKey := Key(pkg.Name, pkg.Version)
	pkgDir := pnpmDir.Join(dirKey, "node_modules", pkg.Name)

	cachedPkgJSON := ""
	if hash, ok := pkg.Files["package.json"]; ok {
		cachedPkgJSON = l.Store.pathFor(hash).String()
	}
	destPkgJSON := pkgDir.Join("package.json").String()
	if cachedPkgJSON != "" {
		if same, err := fs.SameFile(cachedPkgJSON, destPkgJSON); err == nil && same {
			return l.linkDeps(pnpmDir, dirKey, pkg, all)
		}
	}

	if err := pkgDir.MkdirAll(0o755); err != nil {
		return &LinkError{Code: ErrNodeModulesWriteFailed, Key: key, Path: pkgDir.String(), Err: err}
	}

	relPaths := make([]string, 0, len(pkg.Files))
	for rel := range pkg.Files {
		relPaths = append(relPaths, rel)
	}
	sort.Strings(relPaths)

	for _, rel := range relPaths {
		hash := pkg.Files[rel]
		src := l.Store.pathFor(hash)
		dest := pkgDir.Join(rel)
		if err := dest.Dir().MkdirAll(0o755); err != nil {
			return &LinkError{Code: ErrNodeModulesWriteFailed, Key: key, Path: dest.String(), Err: err}
		}
		if err := fs.LinkOrCopyFile(src.String(), dest.String(), 0o644); err != nil {
			return &LinkError{Code: ErrPkgLinkFailed, Key: key, Path: dest.String(), Err: err}
		}
	}

	return l.linkDeps(pnpmDir, dirKey, pkg, all)
}

func (l *Linker) linkDeps(pnpmDir fs.AbsolutePath, dirKey string, pkg *Package, all map[string]*Package) error {
	pkgNodeModules := pnpmDir.Join(dirKey, "node_modules")

	depNames := make([]string, 0, len(pkg.Dependencies))
	for n := range pkg.Dependencies {
		depNames = append(depNames, n)
	}
	sort.Strings(depNames)

	for _, depName := range depNames {
		depKey := pkg.Dependencies[depName]
		dep, ok := all[depKey]
		if !ok {
			continue
		}
		target := pnpmDir.Join(Key(dep.Name, dep.Version), "node_modules", dep.Name)
		link := pkgNodeModules.Join(depName)
		if err := fs.ReplaceSymlink(target.String(), link.String()); err != nil {
			return &LinkError{Code: ErrPkgLinkFailed, Key: depKey, Path: link.String(), Err: err}
		}
	}
	return nil
}

// linkBins creates .bin entries for every package with a declared bin
// field (spec §4.4 "Binary linking"). Windows .cmd shim generation is out
// of scope for this platform-neutral implementation; POSIX symlinks with
// execute bits ensured are always produced.
func (l *Linker) linkBins(binDir, pnpmDir fs.AbsolutePath, packages map[string]*Package) error {
	keys := make([]string, 0, len(packages))
	for k := range packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pkg := packages[key]
		binNames := make([]string, 0, len(pkg.Bin))
		for n := range pkg.Bin {
			binNames = append(binNames, n)
		}
		sort.Strings(binNames)

		for _, binName := range binNames {
			relPath := pkg.Bin[binName]
			target := pnpmDir.Join(Key(pkg.Name, pkg.Version), "node_modules", pkg.Name, relPath)
			link := binDir.Join(binName)
			if err := fs.ReplaceSymlink(target.String(), link.String()); err != nil {
				return &LinkError{Code: ErrPkgLinkFailed, Key: key, Path: link.String(), Err: err}
			}
			if info, err := os.Lstat(target.String()); err == nil {
				_ = os.Chmod(target.String(), info.Mode()|0o111)
			}
		}
	}
	return nil
}

// ScopedSubpath splits a scoped bin relative path into its directory
// component, used when callers need to ensure intermediate directories
// exist before a hard link (mirrors path.Dir, kept here for callers that
// only import this package).
func ScopedSubpath(rel string) string { return path.Dir(rel) }
