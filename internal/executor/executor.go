package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/howth-dev/howth/internal/buildgraph"
	"github.com/howth-dev/howth/internal/env"
	"github.com/howth-dev/howth/internal/fingerprint"
)

const defaultMaxParallel = 4

// Execute runs the full build-executor algorithm from spec §4.7: compute
// node hashes, restrict the run to the reachable set of targets, then walk
// the graph respecting dependency order, consulting cache for each node and
// running its script on a miss. Nodes whose declared outputs come back
// unchanged from the cached fingerprint are still recorded as cache hits;
// nodes whose outputs changed out from under the cache are re-run and
// reported with ReasonOutputsChanged.
func Execute(g *buildgraph.Graph, cache Cache, vars env.Map, opts Options) (RunResult, error) {
	if cache == nil {
		cache = NewMemCache()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}

	if err := g.ComputeHashes(vars); err != nil {
		return RunResult{}, err
	}

	targets := opts.Targets
	if len(targets) == 0 {
		targets = g.DefaultTargets
	}
	reachable, err := g.Reachable(targets)
	if err != nil {
		return RunResult{}, err
	}

	order, err := g.Toposort()
	if err != nil {
		return RunResult{}, err
	}

	var scoped []string
	for _, id := range order {
		if reachable[id] {
			scoped = append(scoped, id)
		}
	}

	results := make(map[string]*NodeResult, len(scoped))
	done := make(map[string]*sync.WaitGroup, len(scoped))
	for _, id := range scoped {
		var wg sync.WaitGroup
		wg.Add(1)
		done[id] = &wg
	}

	sem := semaphore.NewWeighted(int64(opts.MaxParallel))
	ctx := context.Background()

	var mu sync.Mutex
	var runWg sync.WaitGroup

	for _, id := range scoped {
		id := id
		n := g.Nodes[id]
		runWg.Add(1)
		go func() {
			defer runWg.Done()
			defer done[id].Done()

			for _, dep := range n.Deps {
				if w, ok := done[dep]; ok {
					w.Wait()
				}
			}

			mu.Lock()
			var failedDep string
			for _, dep := range n.Deps {
				if r, ok := results[dep]; ok && !r.OK {
					failedDep = dep
					break
				}
			}
			mu.Unlock()

			if failedDep != "" {
				mu.Lock()
				results[id] = &NodeResult{NodeID: id, Skipped: true, SkipDep: failedDep, OK: false}
				mu.Unlock()
				return
			}

			_ = sem.Acquire(ctx, 1)
			defer sem.Release(1)

			res := runNode(g, n, cache, opts)
			mu.Lock()
			results[id] = &res
			mu.Unlock()
		}()
	}
	runWg.Wait()

	out := RunResult{OK: true}
	for _, id := range scoped {
		r := results[id]
		if r == nil {
			continue
		}
		out.Nodes = append(out.Nodes, *r)
		if !r.OK {
			out.OK = false
		}
	}
	return out, nil
}

// runNode implements steps 3-5 for a single node: cache lookup, optional
// script execution, fingerprint comparison, cache write-back.
func runNode(g *buildgraph.Graph, n *buildgraph.Node, cache Cache, opts Options) NodeResult {
	entry, hit := cache.Get(n.ID, n.Hash)

	if hit && !opts.Force {
		if len(n.Outputs) == 0 {
			return NodeResult{NodeID: n.ID, Reason: ReasonCacheHit, OK: entry.OK}
		}
		fp, err := fingerprint.Compute(g.Cwd, n.Outputs)
		if err == nil && fingerprintsEqual(fp, entry.Fingerprint) {
			return NodeResult{NodeID: n.ID, Reason: ReasonCacheHit, OK: entry.OK}
		}
		// outputs were mutated since the cached run; fall through to a
		// real re-execution below but remember why.
		return runAndRecord(g, n, cache, ReasonOutputsChanged, opts)
	}

	reason := ReasonFirstBuild
	if opts.Force {
		reason = ReasonForced
	}
	return runAndRecord(g, n, cache, reason, opts)
}

func runAndRecord(g *buildgraph.Graph, n *buildgraph.Node, cache Cache, reason Reason, opts Options) NodeResult {
	if opts.DryRun {
		return NodeResult{NodeID: n.ID, Reason: reason, OK: true}
	}

	start := time.Now()
	res := NodeResult{NodeID: n.ID, Reason: reason}

	if n.Script != nil {
		code, stdout, stderr, truncated, err := runScript(n.Script)
		res.ExitCode = code
		res.Stdout = stdout
		res.Stderr = stderr
		res.Truncated = truncated
		res.OK = err == nil && code == 0
	} else {
		res.OK = true
	}

	res.DurationMS = time.Since(start).Milliseconds()

	var fp *fingerprint.Fingerprint
	if res.OK {
		if computed, err := fingerprint.Compute(g.Cwd, n.Outputs); err == nil {
			fp = computed
		}
	}
	cache.Put(n.ID, n.Hash, CacheEntry{OK: res.OK, Fingerprint: fp})

	return res
}

func fingerprintsEqual(a, b *fingerprint.Fingerprint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash && a.OutputCount == b.OutputCount && a.TotalSize == b.TotalSize
}
