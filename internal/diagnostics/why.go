package diagnostics

import (
	"sort"

	"github.com/howth-dev/howth/internal/fs"
)

const defaultMaxChains = 5

// Chain is one dependency path from the root package down to the
// queried package (spec §4.12 "pkg why").
type Chain struct {
	Packages []string `json:"packages"`
}

// Why implements "pkg why": BFS over the installed tree's dependency
// edges from root down to every occurrence of target, returning at most
// maxChains (1..=50, default 5) shortest chains. Ties at the same depth
// are broken by sorted edge order, so the result is deterministic
// regardless of node_modules walk order.
func Why(root string, rootPkg *fs.PackageJSON, target string, maxChains int) ([]Chain, error) {
	if maxChains <= 0 {
		maxChains = defaultMaxChains
	}
	if maxChains > 50 {
		maxChains = 50
	}

	nodes, err := indexTree(root)
	if err != nil {
		return nil, err
	}
	byName := map[string][]int{}
	for i, n := range nodes {
		byName[n.Name] = append(byName[n.Name], i)
	}

	rootDeps := make([]string, 0, len(rootPkg.Dependencies))
	for name := range rootPkg.Dependencies {
		rootDeps = append(rootDeps, name)
	}
	sort.Strings(rootDeps)

	type queueEntry struct {
		name string
		path []string
	}
	var queue []queueEntry
	for _, name := range rootDeps {
		queue = append(queue, queueEntry{name: name, path: []string{name}})
	}

	var chains []Chain
	visited := map[string]bool{}
	for len(queue) > 0 && len(chains) < maxChains {
		cur := queue[0]
		queue = queue[1:]

		if cur.name == target {
			chains = append(chains, Chain{Packages: append([]string{}, cur.path...)})
			continue
		}
		if visited[cur.name] {
			continue
		}
		visited[cur.name] = true

		var deps []string
		for _, idx := range byName[cur.name] {
			deps = append(deps, nodes[idx].Dependencies...)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			queue = append(queue, queueEntry{name: dep, path: append(append([]string{}, cur.path...), dep)})
		}
	}

	return chains, nil
}
