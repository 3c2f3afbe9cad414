package hashing

import "sort"

// NodeSchemaVersion tags the canonical node-hash encoding; a breaking change
// to the encoding requires bumping this (mirrors BUILD_GRAPH_SCHEMA_VERSION
// in spec §4.11).
const NodeSchemaVersion = "1"

// EncodedInput pairs an input's canonical encoding (the sort key, and also
// written into the node hash ahead of the input hash) with its computed
// hash.
type EncodedInput struct {
	Encoding string
	Hash     string
}

// EncodedDep pairs a dependency node id with its already-computed hash.
type EncodedDep struct {
	ID   string
	Hash string
}

// NodeHash implements spec §4.1 "Node hash": blake3 over the canonical
// concatenation of the schema version tag, kind, label, sorted input
// encodings each followed by its input hash, the env-allowlist hash, the
// script spec, and sorted dependency ids each followed by that dep's hash.
//
// Inputs are sorted by canonical encoding (not identifier) and dependencies
// by id, both lexicographically, so the result is stable across platforms
// and across map-iteration order.
func NodeHash(kind, label string, inputs []EncodedInput, envHash, scriptSpec string, deps []EncodedDep) string {
	sortedInputs := append([]EncodedInput(nil), inputs...)
	sort.Slice(sortedInputs, func(i, j int) bool {
		return sortedInputs[i].Encoding < sortedInputs[j].Encoding
	})

	sortedDeps := append([]EncodedDep(nil), deps...)
	sort.Slice(sortedDeps, func(i, j int) bool { return sortedDeps[i].ID < sortedDeps[j].ID })

	d := NewDigest()
	d.WriteString(NodeSchemaVersion)
	d.WriteString(kind)
	d.WriteString(label)
	for _, in := range sortedInputs {
		d.WriteString(in.Encoding)
		d.WriteString(in.Hash)
	}
	d.WriteString(envHash)
	d.WriteString(scriptSpec)
	for _, dep := range sortedDeps {
		d.WriteString(dep.ID)
		d.WriteString(dep.Hash)
	}
	return d.Sum()
}
