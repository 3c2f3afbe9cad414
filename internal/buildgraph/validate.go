package buildgraph

import (
	"fmt"
	"path/filepath"

	"github.com/pyr-sh/dag"
)

// MissingDepError is returned when a node's dep set references an id not
// present in the graph (spec §3 invariant (b)).
type MissingDepError struct {
	NodeID string
	DepID  string
}

func (e *MissingDepError) Error() string {
	return fmt.Sprintf("node %q depends on unknown node %q", e.NodeID, e.DepID)
}

// CycleError is returned when the graph's dependency edges form a cycle
// (spec §3 invariant (a): the graph must be acyclic).
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("build graph has %d cycle(s)", len(e.Cycles))
}

// InvalidPathError is returned when a file/glob/dir input path is neither
// absolute nor relative to the graph's cwd (spec §3 invariant (d)). In
// practice every path string is accepted as relative-to-cwd unless it's
// already absolute, so this only fires for empty paths.
type InvalidPathError struct {
	NodeID string
	Path   string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("node %q has invalid path input %q", e.NodeID, e.Path)
}

// Validate checks all four invariants from spec §3 and returns the first
// violation found. Dep references are checked before cycles, so a graph
// with a dangling dep is reported as a MissingDepError, not as a cycle.
func (g *Graph) Validate() error {
	for id, n := range g.Nodes {
		for _, dep := range n.Deps {
			if _, ok := g.Nodes[dep]; !ok {
				return &MissingDepError{NodeID: id, DepID: dep}
			}
		}
		for _, in := range n.Inputs {
			switch in.Kind {
			case InputFile, InputGlob, InputDir:
				if in.Path == "" {
					return &InvalidPathError{NodeID: id, Path: in.Path}
				}
				if !filepath.IsAbs(in.Path) && filepath.IsAbs(g.Cwd) {
					// relative-to-cwd is valid; nothing further to check.
					_ = filepath.Join(g.Cwd, in.Path)
				}
			case InputDepNode:
				if _, ok := g.Nodes[in.DepID]; !ok {
					return &MissingDepError{NodeID: id, DepID: in.DepID}
				}
			}
		}
	}

	if cycles := g.findCycles(); len(cycles) > 0 {
		return &CycleError{Cycles: cycles}
	}
	return nil
}

// findCycles builds a pyr-sh/dag graph mirroring the node/dep edges and
// asks it to validate acyclicity; on failure it also performs a DFS to
// report the offending node-id cycles in a stable, human-readable form.
func (g *Graph) findCycles() [][]string {
	ag := &dag.AcyclicGraph{}
	for id := range g.Nodes {
		ag.Add(id)
	}
	for id, n := range g.Nodes {
		for _, dep := range n.Deps {
			ag.Connect(dag.BasicEdge(id, dep))
		}
	}
	if err := ag.Validate(); err == nil {
		return nil
	}

	// DFS-based cycle enumeration over our own adjacency, independent of
	// dag's internal error formatting, so the result is stable.
	var cycles [][]string
	visited := map[string]int{} // 0=unvisited 1=in-stack 2=done
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = 1
		stack = append(stack, id)
		for _, dep := range g.Nodes[id].Deps {
			switch visited[dep] {
			case 0:
				visit(dep)
			case 1:
				// Found a back-edge; extract the cycle from the stack.
				for i, s := range stack {
					if s == dep {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		visited[id] = 2
	}
	for id := range g.Nodes {
		if visited[id] == 0 {
			visit(id)
		}
	}
	return cycles
}
