package buildgraph

import "sort"

// Normalize sorts node ids, each node's dep list and inputs, and the
// default-targets list, so two graphs built from identical inputs in
// different map/slice orders serialize identically (spec §4.6 "normalize
// sorts node ids, dep lists, inputs, and default targets for
// determinism").
func (g *Graph) Normalize() {
	sort.Strings(g.DefaultTargets)
	for _, n := range g.Nodes {
		sort.Strings(n.Deps)
		sort.Strings(n.EnvAllowlist)
		sort.Slice(n.Inputs, func(i, j int) bool {
			return encodeInput(n.Inputs[i]) < encodeInput(n.Inputs[j])
		})
	}
}

// Toposort returns a deterministic topological order of all node ids: a
// node never precedes any of its dependencies, and ties (nodes with no
// ordering constraint between them) are broken lexicographically by id
// (spec §4.6: "toposort returns a deterministic topological order (ties
// broken by id)"). It is recomputed on every call rather than cached, per
// the package's "graph is a value type" design.
func (g *Graph) Toposort() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		inDegree[id] = 0
	}
	for id, n := range g.Nodes {
		inDegree[id] = len(n.Deps)
		for _, dep := range n.Deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order, nil
}

// Reachable returns the transitive closure of nodes reachable from targets
// by following dep edges, used by the executor to restrict a run to an
// explicit --targets list (spec §4.7 step 2).
func (g *Graph) Reachable(targets []string) (map[string]bool, error) {
	result := map[string]bool{}
	var visit func(id string) error
	visit = func(id string) error {
		if result[id] {
			return nil
		}
		n, ok := g.Nodes[id]
		if !ok {
			return &MissingDepError{NodeID: "<target>", DepID: id}
		}
		result[id] = true
		for _, dep := range n.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range targets {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return result, nil
}
