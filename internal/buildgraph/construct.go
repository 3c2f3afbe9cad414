package buildgraph

import (
	"fmt"
	"sort"

	"github.com/howth-dev/howth/internal/fs"
)

// FromPackageJSON derives the default graph for a project (spec §4.6
// "Construction from a project"): a transpile node globbing
// src/**/*.{ts,tsx,js,jsx} into dist/, a typecheck node over the same
// sources running `tsc --noEmit`, and one script:<name> node per entry in
// package.json's scripts with no declared inputs.
func FromPackageJSON(cwd string, pkg *fs.PackageJSON) (*Graph, error) {
	g := New(cwd)

	srcGlob := Input{Kind: InputGlob, Path: "src/**/*.{ts,tsx,js,jsx}", Root: cwd}

	transpile := &Node{
		ID:      "transpile:default",
		Kind:    KindTranspile,
		Label:   "default",
		Inputs:  []Input{srcGlob},
		Outputs: []Output{{Kind: OutputDir, Path: "dist"}},
		Script:  &ScriptSpec{Command: "howth-transpile src --out dist", Shell: true, Cwd: cwd},
	}
	if err := g.AddNode(transpile); err != nil {
		return nil, err
	}

	typecheck := &Node{
		ID:     "typecheck:default",
		Kind:   KindTypecheck,
		Label:  "default",
		Inputs: []Input{srcGlob},
		Script: &ScriptSpec{Command: "tsc --noEmit", Shell: true, Cwd: cwd},
	}
	if err := g.AddNode(typecheck); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(pkg.Scripts))
	for name := range pkg.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := fmt.Sprintf("script:%s", name)
		n := &Node{
			ID:     id,
			Kind:   KindScript,
			Label:  name,
			Script: &ScriptSpec{Command: pkg.Scripts[name], Shell: true, Cwd: cwd},
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	g.DefaultTargets = append([]string{transpile.ID, typecheck.ID}, defaultTargetIDs(names)...)
	g.Normalize()
	return g, nil
}

func defaultTargetIDs(scriptNames []string) []string {
	ids := make([]string, 0, len(scriptNames))
	for _, name := range scriptNames {
		ids = append(ids, "script:"+name)
	}
	return ids
}
