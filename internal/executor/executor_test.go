package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/buildgraph"
	"github.com/howth-dev/howth/internal/env"
)

func TestExecuteFirstBuildThenCacheHit(t *testing.T) {
	dir := t.TempDir()
	g := buildgraph.New(dir)
	require.NoError(t, g.AddNode(&buildgraph.Node{
		ID:    "script:build",
		Kind:  buildgraph.KindScript,
		Label: "build",
		Script: &buildgraph.ScriptSpec{
			Command: "echo hello",
			Shell:   true,
			Cwd:     dir,
		},
	}))
	g.DefaultTargets = []string{"script:build"}

	cache := NewMemCache()

	res, err := Execute(g, cache, env.Map{}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, ReasonFirstBuild, res.Nodes[0].Reason)
	assert.True(t, res.Nodes[0].OK)
	assert.Contains(t, res.Nodes[0].Stdout, "hello")

	res2, err := Execute(g, cache, env.Map{}, Options{})
	require.NoError(t, err)
	require.Len(t, res2.Nodes, 1)
	assert.Equal(t, ReasonCacheHit, res2.Nodes[0].Reason)
}

func TestExecuteSkipsDependentOnFailedDep(t *testing.T) {
	dir := t.TempDir()
	g := buildgraph.New(dir)
	require.NoError(t, g.AddNode(&buildgraph.Node{
		ID:     "script:fail",
		Kind:   buildgraph.KindScript,
		Label:  "fail",
		Script: &buildgraph.ScriptSpec{Command: "exit 1", Shell: true, Cwd: dir},
	}))
	require.NoError(t, g.AddNode(&buildgraph.Node{
		ID:     "script:dependent",
		Kind:   buildgraph.KindScript,
		Label:  "dependent",
		Deps:   []string{"script:fail"},
		Script: &buildgraph.ScriptSpec{Command: "echo never", Shell: true, Cwd: dir},
	}))
	g.DefaultTargets = []string{"script:dependent"}

	res, err := Execute(g, NewMemCache(), env.Map{}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	assert.False(t, res.OK)

	byID := map[string]NodeResult{}
	for _, n := range res.Nodes {
		byID[n.NodeID] = n
	}
	assert.False(t, byID["script:fail"].OK)
	assert.True(t, byID["script:dependent"].Skipped)
	assert.Equal(t, "script:fail", byID["script:dependent"].SkipDep)
}

func TestExecuteOutputsChangedForcesRerun(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	g := buildgraph.New(dir)
	require.NoError(t, g.AddNode(&buildgraph.Node{
		ID:      "script:write",
		Kind:    buildgraph.KindScript,
		Label:   "write",
		Outputs: []buildgraph.Output{{Kind: buildgraph.OutputFile, Path: "out.txt"}},
		Script:  &buildgraph.ScriptSpec{Command: "echo v1 > out.txt", Shell: true, Cwd: dir},
	}))
	g.DefaultTargets = []string{"script:write"}
	cache := NewMemCache()

	_, err := Execute(g, cache, env.Map{}, Options{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(outPath, []byte("mutated externally"), 0o644))

	res, err := Execute(g, cache, env.Map{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, ReasonOutputsChanged, res.Nodes[0].Reason)
}
