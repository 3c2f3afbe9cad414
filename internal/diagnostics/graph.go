// Package diagnostics implements spec §4.12's four read-only views over
// an installed tree: pkg graph, pkg explain, pkg why, pkg doctor. None of
// the teacher's packages build anything like this (turborepo has no
// installed-tree diagnostic surface; its `graph`/`graphvisualizer`
// commands visualize the *task* graph, a different thing entirely), so
// these are new work grounded directly on spec §4.12's own algorithm
// descriptions, reusing internal/resolver for pkg explain and
// internal/fs for package.json reads.
package diagnostics

import (
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"

	"github.com/howth-dev/howth/internal/fs"
)

const defaultMaxDepth = 25

// PackageNode is one indexed package (spec §4.12 "pkg graph").
type PackageNode struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Path         string   `json:"path"`
	Dependencies []string `json:"dependencies"`
}

// PackageGraph is the pkg-graph view's deterministic output.
type PackageGraph struct {
	Nodes   []PackageNode `json:"nodes"`
	Orphans []PackageNode `json:"orphans"`
}

// indexTree walks root/node_modules, indexing every directory that
// contains a package.json. ".bin" and dot-directories are skipped, except
// ".pnpm" which this implementation descends into since it holds the
// actual package content in the content-addressed virtual store
// internal/linker produces — a real tree has no packages to index at all
// if .pnpm is skipped like every other dot-directory (documented as an
// Open Question decision in DESIGN.md).
func indexTree(root string) ([]PackageNode, error) {
	nodeModules := filepath.Join(root, "node_modules")
	var nodes []PackageNode

	err := godirwalk.Walk(nodeModules, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == nodeModules {
				return nil
			}
			name := filepath.Base(path)
			isDe, err := de.IsDirOrSymlinkToDir()
			if err != nil || !isDe {
				return nil
			}
			if name == ".bin" {
				return godirwalk.SkipThis
			}
			if de.IsSymlink() {
				// Top-level convenience symlinks into .pnpm; don't
				// double-index the target by walking through them.
				return godirwalk.SkipThis
			}
			if len(name) > 0 && name[0] == '.' && name != ".pnpm" {
				return godirwalk.SkipThis
			}

			pkgJSONPath := filepath.Join(path, "package.json")
			if !fs.FileExists(pkgJSONPath) {
				return nil
			}
			pkg, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(pkgJSONPath))
			if err != nil {
				return nil // surfaced by doctor's "invalid package.json" check instead
			}
			deps := make([]string, 0, len(pkg.Dependencies))
			for dep := range pkg.Dependencies {
				deps = append(deps, dep)
			}
			sort.Strings(deps)
			nodes = append(nodes, PackageNode{
				Name:         pkg.Name,
				Version:      pkg.Version,
				Path:         path,
				Dependencies: deps,
			})
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func sortNodes(nodes []PackageNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		if nodes[i].Version != nodes[j].Version {
			return nodes[i].Version < nodes[j].Version
		}
		return nodes[i].Path < nodes[j].Path
	})
}

// Graph implements "pkg graph" (spec §4.12): index the tree, then
// BFS-traverse from the root package.json's declared dependencies up to
// maxDepth (default 25, nodes sorted by (name, version, path)). Indexed
// packages never reached from the root set are reported as orphans.
func Graph(root string, rootPkg *fs.PackageJSON, maxDepth int) (*PackageGraph, error) {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	nodes, err := indexTree(root)
	if err != nil {
		return nil, err
	}

	byName := map[string][]int{}
	for i, n := range nodes {
		byName[n.Name] = append(byName[n.Name], i)
	}

	reached := map[int]bool{}
	type frontierEntry struct {
		idx   int
		depth int
	}
	var frontier []frontierEntry
	rootDeps := make([]string, 0, len(rootPkg.Dependencies))
	for name := range rootPkg.Dependencies {
		rootDeps = append(rootDeps, name)
	}
	sort.Strings(rootDeps)
	for _, name := range rootDeps {
		for _, idx := range byName[name] {
			if !reached[idx] {
				reached[idx] = true
				frontier = append(frontier, frontierEntry{idx: idx, depth: 1})
			}
		}
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= maxDepth {
			continue
		}
		n := nodes[cur.idx]
		for _, dep := range n.Dependencies {
			for _, idx := range byName[dep] {
				if !reached[idx] {
					reached[idx] = true
					frontier = append(frontier, frontierEntry{idx: idx, depth: cur.depth + 1})
				}
			}
		}
	}

	var reachedNodes, orphans []PackageNode
	for i, n := range nodes {
		if reached[i] {
			reachedNodes = append(reachedNodes, n)
		} else {
			orphans = append(orphans, n)
		}
	}
	sortNodes(reachedNodes)
	sortNodes(orphans)

	return &PackageGraph{Nodes: reachedNodes, Orphans: orphans}, nil
}
