// Package executor implements spec §4.7: the build executor that walks a
// buildgraph.Graph in topological order, consults a cache for each node by
// its computed hash, and runs the node's script when the cache misses.
package executor

import "github.com/howth-dev/howth/internal/fingerprint"

// Reason explains why a node was (or wasn't) executed, surfaced to callers
// so --dry-run and logging can report it (spec §4.7 step 6).
type Reason string

const (
	ReasonFirstBuild     Reason = "first_build"
	ReasonForced         Reason = "forced"
	ReasonOutputsChanged Reason = "outputs_changed"
	ReasonCacheHit       Reason = "cache_hit"
)

// CacheEntry is what a Cache stores per (node id, input hash) pair: whether
// the prior run succeeded and, if it declared outputs, their fingerprint.
type CacheEntry struct {
	OK          bool
	Fingerprint *fingerprint.Fingerprint
}

// Cache is the (node_id, input_hash) -> CacheEntry lookup the executor
// consults before running a node, and populates after. internal/daemoncache
// implements this for the daemon; a simple in-memory map suffices for
// one-shot CLI runs.
type Cache interface {
	Get(nodeID, inputHash string) (CacheEntry, bool)
	Put(nodeID, inputHash string, entry CacheEntry)
}

// MemCache is a Cache backed by a plain map, good for a single invocation
// of the CLI outside the daemon.
type MemCache struct {
	m map[string]CacheEntry
}

func NewMemCache() *MemCache {
	return &MemCache{m: map[string]CacheEntry{}}
}

func (c *MemCache) key(nodeID, inputHash string) string { return nodeID + "@" + inputHash }

func (c *MemCache) Get(nodeID, inputHash string) (CacheEntry, bool) {
	e, ok := c.m[c.key(nodeID, inputHash)]
	return e, ok
}

func (c *MemCache) Put(nodeID, inputHash string, entry CacheEntry) {
	c.m[c.key(nodeID, inputHash)] = entry
}

// Options configures a Run (spec §4.7 steps 2-3).
type Options struct {
	// Force skips the cache entirely and re-runs every reachable node.
	Force bool
	// DryRun computes reasons without executing any script.
	DryRun bool
	// MaxParallel caps concurrently-running nodes whose deps are satisfied.
	// Zero means a sane default (4).
	MaxParallel int
	// Targets restricts the run to these node ids and their transitive
	// deps. Empty means the graph's DefaultTargets.
	Targets []string
}

// NodeResult is the per-node outcome of a Run.
type NodeResult struct {
	NodeID   string
	Reason   Reason
	Skipped  bool
	SkipDep  string // set when Skipped is true because a dep failed
	OK       bool
	ExitCode int
	Stdout   string
	Stderr   string
	Truncated bool
	DurationMS int64
}

// RunResult is the full outcome of executing a graph.
type RunResult struct {
	Nodes []NodeResult
	OK    bool
}
