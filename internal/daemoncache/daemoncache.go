// Package daemoncache implements spec §4.9: the three thread-safe caches
// the daemon keeps for its lifetime (resolver, package.json, build), each
// with a reverse index from file paths to cache keys so the file watcher
// (§4.10) can invalidate narrowly instead of clearing everything. Grounded
// on the teacher's internal/taskhash.Tracker, which guards a similar
// mutex-protected map of computed hashes, generalized here to three
// distinct cache shapes plus explicit reverse indexes.
package daemoncache

import (
	"os"
	"sync"

	"github.com/howth-dev/howth/internal/executor"
	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/resolver"
)

// Stamp is a (mtime_ms, size) pair attached to a cached result (spec §3
// "Cache entry (resolver)", GLOSSARY "Stamp").
type Stamp struct {
	MtimeMs int64
	Size    int64
}

func stampFor(path string) (Stamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Stamp{}, false
	}
	return Stamp{MtimeMs: info.ModTime().UnixMilli(), Size: info.Size()}, true
}

func (s Stamp) stillValid(path string) bool {
	current, ok := stampFor(path)
	if !ok {
		return false
	}
	return current == s
}

// ---- Resolver cache -------------------------------------------------

// ResolverKey is (cwd, parent, specifier, channel) per spec §4.9.
type ResolverKey struct {
	Cwd       string
	ParentDir string
	Specifier string
	Channel   string
}

type resolverEntry struct {
	result resolver.Result
	stamp  Stamp
	valid  bool // false when the result was a failure with no file to stamp
}

// ResolverCache implements spec §4.9 item 1. Get validates the stamp
// before returning, so a mutated file transparently misses without an
// explicit invalidation.
type ResolverCache struct {
	mu      sync.RWMutex
	entries map[ResolverKey]resolverEntry
	reverse map[string]map[ResolverKey]bool // resolved_path -> keys
}

func NewResolverCache() *ResolverCache {
	return &ResolverCache{
		entries: map[ResolverKey]resolverEntry{},
		reverse: map[string]map[ResolverKey]bool{},
	}
}

func (c *ResolverCache) Get(key ResolverKey) (resolver.Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return resolver.Result{}, false
	}
	if e.valid && !e.stamp.stillValid(e.result.Resolved) {
		return resolver.Result{}, false
	}
	return e.result, true
}

func (c *ResolverCache) Set(key ResolverKey, result resolver.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := resolverEntry{result: result}
	if result.Resolved != "" {
		if stamp, ok := stampFor(result.Resolved); ok {
			entry.stamp = stamp
			entry.valid = true
		}
	}
	c.entries[key] = entry

	if result.Resolved != "" {
		if c.reverse[result.Resolved] == nil {
			c.reverse[result.Resolved] = map[ResolverKey]bool{}
		}
		c.reverse[result.Resolved][key] = true
	}
}

// InvalidatePath drops every cache entry whose resolved path is path,
// using the reverse index (spec §4.10 coalescing step a).
func (c *ResolverCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.reverse[path]
	for k := range keys {
		delete(c.entries, k)
	}
	delete(c.reverse, path)
}

// Stats reports entry and reverse-index sizes for diagnostics/tests.
func (c *ResolverCache) Stats() (entries, reversePaths int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), len(c.reverse)
}

// ---- package.json cache -----------------------------------------------

type packageJSONEntry struct {
	pkg   *fs.PackageJSON
	stamp Stamp
}

// PackageJSONCache implements spec §4.9 item 2: canonical package.json
// path -> parsed value + stamp.
type PackageJSONCache struct {
	mu      sync.RWMutex
	entries map[string]packageJSONEntry
}

func NewPackageJSONCache() *PackageJSONCache {
	return &PackageJSONCache{entries: map[string]packageJSONEntry{}}
}

func (c *PackageJSONCache) Get(path string) (*fs.PackageJSON, bool) {
	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if !ok || !e.stamp.stillValid(path) {
		return nil, false
	}
	return e.pkg, true
}

func (c *PackageJSONCache) Set(path string, pkg *fs.PackageJSON) {
	stamp, _ := stampFor(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = packageJSONEntry{pkg: pkg, stamp: stamp}
}

// Invalidate drops path's entry unconditionally (spec §4.10 step b: "if
// the path is named package.json, invalidate the package.json cache").
func (c *PackageJSONCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// ---- Build cache --------------------------------------------------

type buildKey struct {
	nodeID    string
	inputHash string
}

// BuildCache implements spec §4.9 item 3 and satisfies executor.Cache.
// Its reverse index maps file paths to node ids and is filled only by
// explicit RecordInputPath calls; graph hashing and the executor do not
// call it, so InvalidatePath drops nothing until a caller has recorded
// paths.
type BuildCache struct {
	mu      sync.RWMutex
	entries map[buildKey]executor.CacheEntry
	reverse map[string]map[string]bool // file path -> node ids
}

func NewBuildCache() *BuildCache {
	return &BuildCache{
		entries: map[buildKey]executor.CacheEntry{},
		reverse: map[string]map[string]bool{},
	}
}

func (c *BuildCache) Get(nodeID, inputHash string) (executor.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[buildKey{nodeID, inputHash}]
	return e, ok
}

func (c *BuildCache) Put(nodeID, inputHash string, entry executor.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[buildKey{nodeID, inputHash}] = entry
}

// RecordInputPath registers that nodeID's hash depended on reading path,
// so a later change to path can invalidate nodeID's cache entries via
// InvalidatePath.
func (c *BuildCache) RecordInputPath(nodeID, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reverse[path] == nil {
		c.reverse[path] = map[string]bool{}
	}
	c.reverse[path][nodeID] = true
}

// InvalidatePath drops every cache entry for every node id that was ever
// recorded as reading path (spec §4.10 step c).
func (c *BuildCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nodeIDs := c.reverse[path]
	for id := range nodeIDs {
		for k := range c.entries {
			if k.nodeID == id {
				delete(c.entries, k)
			}
		}
	}
	delete(c.reverse, path)
}

func (c *BuildCache) Stats() (entries, reversePaths int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), len(c.reverse)
}

// Caches bundles the three daemon caches as a single unit for lifecycle
// management (construction, and future reset-on-shutdown).
type Caches struct {
	Resolver    *ResolverCache
	PackageJSON *PackageJSONCache
	Build       *BuildCache
}

func New() *Caches {
	return &Caches{
		Resolver:    NewResolverCache(),
		PackageJSON: NewPackageJSONCache(),
		Build:       NewBuildCache(),
	}
}
