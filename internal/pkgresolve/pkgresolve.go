// Package pkgresolve implements spec §4.3: wave-based resolution of a
// project's package.json dependency graph against an npm registry,
// producing a map of Resolved entries keyed by "<name>@<version>", which
// lockfile.Build turns into a Lockfile. Grounded on the teacher's
// internal/lockfile berry/npm lockfile packages for alias-parsing and
// locked-entry shape (adapted to a single schema rather than that
// package's per-ecosystem readers), with bounded-concurrency fetches
// modeled on internal/run's task scheduling.
package pkgresolve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/semaphore"

	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/registry"
)

// maxConcurrentFetches bounds in-flight packument fetches (spec §4.3 step 2,
// §5 "Package fetches are bounded at 32 concurrent requests").
const maxConcurrentFetches = 32

// defaultMaxDepth caps resolution depth (spec §4.3 step 5).
const defaultMaxDepth = 100

// ErrorCode is one of spec §4.3's failure modes.
type ErrorCode string

const (
	ErrPkgNotFound        ErrorCode = "PKG_NOT_FOUND"
	ErrPkgVersionNotFound ErrorCode = "PKG_VERSION_NOT_FOUND"
	ErrPkgRegistryError   ErrorCode = "PKG_REGISTRY_ERROR"
	ErrPkgSpecInvalid     ErrorCode = "PKG_SPEC_INVALID"
)

// ResolveError carries one of the above codes plus the offending spec.
type ResolveError struct {
	Code ErrorCode
	Name string
	Spec string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %s@%s: %v", e.Code, e.Name, e.Spec, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Options configures which optional dependency kinds are seeded/expanded.
type Options struct {
	IncludeDev      bool
	IncludeOptional bool
	MaxDepth        int
}

// Resolved is one package resolved into the tree, keyed by "<name>@<version>".
type Resolved struct {
	Name                 string
	Version              string
	Integrity            string
	Shasum               string
	Tarball              string
	AliasFor             string // set when this entry was reached via an npm: alias
	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerOptional         map[string]bool
	HasInstallScript     bool
	Os                   []string
	Cpu                  []string
}

func key(name, version string) string { return name + "@" + version }

type pendingSpec struct {
	name string // lockfile-visible name (alias name, if any)
	real string // registry package name
	spec string // semver range or exact version
	depth int
}

// Resolve runs the full wave algorithm (spec §4.3 steps 1-6) against pkg's
// dependency fields and returns every resolved package keyed by
// "<name>@<version>".
func Resolve(ctx context.Context, client *registry.Client, pkg *fs.PackageJSON, opts Options) (map[string]*Resolved, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}

	packumentCache := &packumentFetcher{client: client, sem: semaphore.NewWeighted(maxConcurrentFetches)}
	resolved := map[string]*Resolved{}

	var pending []pendingSpec
	seed := func(deps map[string]string) {
		names := sortedKeys(deps)
		for _, n := range names {
			pending = append(pending, parseSpec(n, deps[n], 1))
		}
	}
	seed(pkg.Dependencies)
	if opts.IncludeDev {
		seed(pkg.DevDependencies)
	}
	if opts.IncludeOptional {
		seed(pkg.OptionalDependencies)
	}

	seen := map[string]bool{} // name -> already enqueued/resolved (dedupe across waves)
	for len(pending) > 0 {
		wave := pending
		pending = nil

		var toFetch []pendingSpec
		for _, p := range wave {
			if p.depth > opts.MaxDepth {
				continue
			}
			if seen[p.real] {
				continue
			}
			seen[p.real] = true
			toFetch = append(toFetch, p)
		}
		if len(toFetch) == 0 {
			continue
		}

		packuments, err := packumentCache.fetchAll(ctx, toFetch)
		if err != nil {
			return nil, err
		}

		for _, p := range toFetch {
			doc := packuments[p.real]
			if doc == nil {
				continue
			}
			version, err := selectVersion(doc, p.spec)
			if err != nil {
				return nil, &ResolveError{Code: ErrPkgVersionNotFound, Name: p.real, Spec: p.spec, Err: err}
			}
			vm := doc.Versions[version]

			entry := &Resolved{
				Name:                 p.name,
				Version:              version,
				Integrity:            vm.Dist.Integrity,
				Shasum:               vm.Dist.Shasum,
				Tarball:              vm.Dist.Tarball,
				Dependencies:         vm.Dependencies,
				OptionalDependencies: vm.OptionalDependencies,
				PeerDependencies:     vm.PeerDependencies,
				HasInstallScript:     vm.HasInstallScript,
				Os:                   vm.Os,
				Cpu:                  vm.Cpu,
			}
			if p.name != p.real {
				entry.AliasFor = p.real
			}
			if len(vm.PeerDependenciesMeta) > 0 {
				entry.PeerOptional = map[string]bool{}
				for n, meta := range vm.PeerDependenciesMeta {
					entry.PeerOptional[n] = meta.Optional
				}
			}
			resolved[key(p.name, version)] = entry

			for _, dn := range sortedKeys(vm.Dependencies) {
				pending = append(pending, parseSpec(dn, vm.Dependencies[dn], p.depth+1))
			}
			if opts.IncludeOptional {
				for _, dn := range sortedKeys(vm.OptionalDependencies) {
					pending = append(pending, parseSpec(dn, vm.OptionalDependencies[dn], p.depth+1))
				}
			}
		}
	}

	if err := resolvePeerPhase(ctx, packumentCache, resolved, seen); err != nil {
		return nil, err
	}

	return resolved, nil
}

// resolvePeerPhase implements step 6: after all regular transitives settle,
// walk every resolved package's peer declarations and enqueue any
// unsatisfied, non-optional peer at depth 1.
func resolvePeerPhase(ctx context.Context, pf *packumentFetcher, resolved map[string]*Resolved, seen map[string]bool) error {
	var peerPending []pendingSpec

	existingVersions := map[string][]string{}
	for k, r := range resolved {
		_ = k
		existingVersions[r.Name] = append(existingVersions[r.Name], r.Version)
	}

	var entryKeys []string
	for k := range resolved {
		entryKeys = append(entryKeys, k)
	}
	sort.Strings(entryKeys)

	for _, k := range entryKeys {
		r := resolved[k]
		peerNames := sortedKeys(r.PeerDependencies)
		for _, peerName := range peerNames {
			if r.PeerOptional[peerName] {
				continue
			}
			rng := r.PeerDependencies[peerName]
			if satisfiedByAny(existingVersions[peerName], rng) {
				continue
			}
			if seen[peerName] {
				continue
			}
			seen[peerName] = true
			peerPending = append(peerPending, parseSpec(peerName, rng, 1))
		}
	}

	for len(peerPending) > 0 {
		wave := peerPending
		peerPending = nil

		packuments, err := pf.fetchAll(ctx, wave)
		if err != nil {
			return err
		}
		for _, p := range wave {
			doc := packuments[p.real]
			if doc == nil {
				continue
			}
			version, err := selectVersion(doc, p.spec)
			if err != nil {
				return &ResolveError{Code: ErrPkgVersionNotFound, Name: p.real, Spec: p.spec, Err: err}
			}
			vm := doc.Versions[version]
			resolved[key(p.name, version)] = &Resolved{
				Name:             p.name,
				Version:          version,
				Integrity:        vm.Dist.Integrity,
				Shasum:           vm.Dist.Shasum,
				Tarball:          vm.Dist.Tarball,
				Dependencies:     vm.Dependencies,
				PeerDependencies: vm.PeerDependencies,
				HasInstallScript: vm.HasInstallScript,
			}
			for _, dn := range sortedKeys(vm.Dependencies) {
				if !seen[dn] {
					seen[dn] = true
					peerPending = append(peerPending, parseSpec(dn, vm.Dependencies[dn], 2))
				}
			}
		}
	}
	return nil
}

func satisfiedByAny(versions []string, rangeSpec string) bool {
	c, err := semver.NewConstraint(rangeSpec)
	if err != nil {
		return false
	}
	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if c.Check(sv) {
			return true
		}
	}
	return false
}

// parseSpec unpacks an `npm:<name>@<range>` alias: the alias name becomes
// the lockfile-visible name, the real name is looked up in the registry.
func parseSpec(name, spec string, depth int) pendingSpec {
	if strings.HasPrefix(spec, "npm:") {
		rest := strings.TrimPrefix(spec, "npm:")
		if idx := strings.LastIndex(rest, "@"); idx > 0 {
			return pendingSpec{name: name, real: rest[:idx], spec: rest[idx+1:], depth: depth}
		}
		return pendingSpec{name: name, real: rest, spec: "*", depth: depth}
	}
	return pendingSpec{name: name, real: name, spec: spec, depth: depth}
}

func selectVersion(doc *registry.Packument, rangeSpec string) (string, error) {
	if rangeSpec == "" || rangeSpec == "*" || rangeSpec == "latest" {
		if v, ok := doc.DistTags["latest"]; ok {
			if _, ok := doc.Versions[v]; ok {
				return v, nil
			}
		}
	}
	c, err := semver.NewConstraint(rangeSpec)
	if err != nil {
		return "", fmt.Errorf("invalid range %q: %w", rangeSpec, err)
	}

	var best *semver.Version
	var bestRaw string
	for raw := range doc.Versions {
		sv, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if !c.Check(sv) {
			continue
		}
		if best == nil || sv.GreaterThan(best) {
			best = sv
			bestRaw = raw
		}
	}
	if best == nil {
		return "", fmt.Errorf("no version satisfies %q", rangeSpec)
	}
	return bestRaw, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// packumentFetcher dedupes and bounds concurrent packument fetches across a
// wave (spec §4.3 steps 1-2).
type packumentFetcher struct {
	client *registry.Client
	sem    *semaphore.Weighted
	mu     sync.Mutex
	cache  map[string]*registry.Packument
}

func (pf *packumentFetcher) fetchAll(ctx context.Context, specs []pendingSpec) (map[string]*registry.Packument, error) {
	names := map[string]bool{}
	for _, s := range specs {
		names[s.real] = true
	}

	result := map[string]*registry.Packument{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	errCh := make(chan error, len(names))

	for name := range names {
		name := name
		pf.mu.Lock()
		if pf.cache == nil {
			pf.cache = map[string]*registry.Packument{}
		}
		if cached, ok := pf.cache[name]; ok {
			pf.mu.Unlock()
			result[name] = cached
			continue
		}
		pf.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pf.sem.Acquire(ctx, 1); err != nil {
				errCh <- err
				return
			}
			defer pf.sem.Release(1)

			doc, err := pf.client.FetchPackument(ctx, name)
			if err != nil {
				errCh <- &ResolveError{Code: classify(err), Name: name, Err: err}
				return
			}
			pf.mu.Lock()
			pf.cache[name] = doc
			pf.mu.Unlock()

			mu.Lock()
			result[name] = doc
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}
	return result, nil
}

func classify(err error) ErrorCode {
	var regErr *registry.RegistryError
	if e, ok := err.(*registry.RegistryError); ok {
		regErr = e
	}
	if regErr != nil && regErr.NotFound {
		return ErrPkgNotFound
	}
	return ErrPkgRegistryError
}
