package buildgraph

import (
	"fmt"
	"path/filepath"

	"github.com/howth-dev/howth/internal/env"
	"github.com/howth-dev/howth/internal/hashing"
)

// encodeInput renders an Input's canonical encoding, used both as the sort
// key spec §4.1 calls for ("Sorting is by canonical input encoding") and as
// part of what gets hashed into the node hash.
func encodeInput(in Input) string {
	switch in.Kind {
	case InputFile:
		return fmt.Sprintf("file:%s", in.Path)
	case InputGlob:
		return fmt.Sprintf("glob:%s:%s", in.Root, in.Path)
	case InputDir:
		return fmt.Sprintf("dir:%s", in.Path)
	case InputLockfile:
		return fmt.Sprintf("lockfile:%s:%d", in.Path, in.SchemaVersion)
	case InputEnvVar:
		return fmt.Sprintf("env:%s", in.EnvVar)
	case InputDepNode:
		return fmt.Sprintf("dep:%s", in.DepID)
	default:
		return fmt.Sprintf("unknown:%s", in.Kind)
	}
}

func encodeScript(s *ScriptSpec) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s\x1f%v\x1f%s", s.Command, s.Shell, s.Cwd)
}

// resolveAbs resolves a possibly-relative path against the graph's cwd.
func (g *Graph) resolveAbs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(g.Cwd, p)
}

// hashInput computes the content hash for a single input (spec §4.1
// "Input hash"). depHashes supplies already-computed hashes for
// InputDepNode references, which must be populated before this is called
// (ComputeHashes guarantees that by working in topological order).
func (g *Graph) hashInput(in Input, vars env.Map, depHashes map[string]string) (string, error) {
	switch in.Kind {
	case InputFile:
		return hashing.HashFileInput(g.resolveAbs(in.Path))
	case InputGlob:
		root := in.Root
		if root == "" {
			root = g.Cwd
		} else {
			root = g.resolveAbs(root)
		}
		return hashing.HashGlobInput(root, in.Path, nil)
	case InputDir:
		return hashing.HashDirInput(g.resolveAbs(in.Path))
	case InputLockfile:
		return hashing.HashLockfileInput(g.resolveAbs(in.Path))
	case InputEnvVar:
		return hashing.HashEnvVarInput(in.EnvVar, vars[in.EnvVar]), nil
	case InputDepNode:
		depHash, ok := depHashes[in.DepID]
		if !ok {
			return "", &MissingDepError{NodeID: "<input>", DepID: in.DepID}
		}
		return hashing.HashDepInput(in.DepID, depHash), nil
	default:
		return "", fmt.Errorf("unknown input kind %q", in.Kind)
	}
}

// ComputeHashes computes every node's Hash field in topological order,
// feeding each dependency's hash into its dependents' canonical encoding
// (spec §4.7 step 1: "the invariant that makes the DAG incrementally
// consistent"). vars supplies the current environment for env-var inputs
// and allowlist hashing.
func (g *Graph) ComputeHashes(vars env.Map) error {
	order, err := g.Toposort()
	if err != nil {
		return err
	}

	depHashes := make(map[string]string, len(g.Nodes))
	for _, id := range order {
		n := g.Nodes[id]

		inputEncodings := make([]hashing.EncodedInput, 0, len(n.Inputs))
		for _, in := range n.Inputs {
			h, err := g.hashInput(in, vars, depHashes)
			if err != nil {
				return fmt.Errorf("hashing input for node %s: %w", id, err)
			}
			inputEncodings = append(inputEncodings, hashing.EncodedInput{
				Encoding: encodeInput(in),
				Hash:     h,
			})
		}

		envHash := hashing.EnvHash(vars, n.EnvAllowlist)

		deps := make([]hashing.EncodedDep, 0, len(n.Deps))
		for _, dep := range n.Deps {
			deps = append(deps, hashing.EncodedDep{ID: dep, Hash: depHashes[dep]})
		}

		n.Hash = hashing.NodeHash(string(n.Kind), n.Label, inputEncodings, envHash, encodeScript(n.Script), deps)
		depHashes[id] = n.Hash
	}
	return nil
}
