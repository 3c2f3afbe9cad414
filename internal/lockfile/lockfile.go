// Package lockfile implements spec §3 "Lockfile" and §6 "Lockfile JSON":
// a single schema (unlike the teacher's per-ecosystem npm/yarn/berry/pnpm
// readers in internal/lockfile, which this package replaces for a project
// that only ever produces one kind of lockfile). Serialization relies on
// encoding/json's existing behavior of emitting map keys in sorted order,
// which satisfies the "keys are sorted lexicographically" invariant for
// free.
package lockfile

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/pkgresolve"
)

// SchemaVersion is the current lockfile_version (spec §9 "Lockfile
// back-compat": bump on breaking change, readers reject higher versions).
const SchemaVersion = 1

// Resolution is how a locked package was obtained.
type Resolution string

const (
	ResolutionRegistry Resolution = "registry"
	ResolutionTarball  Resolution = "tarball"
	ResolutionGit      Resolution = "git"
	ResolutionFile     Resolution = "file"
	ResolutionLink     Resolution = "link"
)

// Package is a single locked entry, keyed by "<name>@<version>" in
// Lockfile.Packages.
type Package struct {
	Version              string            `json:"version"`
	Integrity            string            `json:"integrity,omitempty"`
	Resolution           Resolution        `json:"resolution"`
	AliasFor             string            `json:"aliasFor,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	HasInstallScript     bool              `json:"hasInstallScript,omitempty"`
	Os                   []string          `json:"os,omitempty"`
	Cpu                  []string          `json:"cpu,omitempty"`
}

// RootDependency is one entry in Lockfile.Dependencies: the root project's
// own declared dependency, plus which packages entry it resolved to.
type RootDependency struct {
	Range    string `json:"range"`
	Kind     string `json:"kind"` // "dependencies" | "devDependencies" | "optionalDependencies"
	Resolved string `json:"resolved"`
}

// Meta carries provenance, not consulted for correctness.
type Meta struct {
	HowthVersion string `json:"howth_version"`
	GeneratedAt  string `json:"generated_at"`
}

// Root identifies the project the lockfile was generated for.
type Root struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Lockfile is the full on-disk schema (spec §6 "Lockfile JSON").
type Lockfile struct {
	LockfileVersion int                       `json:"lockfile_version"`
	Meta            Meta                      `json:"meta"`
	Root            Root                      `json:"root"`
	Dependencies    map[string]RootDependency `json:"dependencies"`
	Packages        map[string]*Package       `json:"packages"`
}

// InvariantError reports a violated lockfile invariant (spec §3).
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string { return e.Reason }

// Validate checks invariants (a) and (b) from spec §3: every dependency
// edge (of any of the three kinds) targets a key present in packages, and
// every root dependency's Resolved field is a key present in packages.
func (l *Lockfile) Validate() error {
	for name, rd := range l.Dependencies {
		if _, ok := l.Packages[rd.Resolved]; !ok {
			return &InvariantError{Reason: fmt.Sprintf("root dependency %q resolves to unknown package %q", name, rd.Resolved)}
		}
	}
	for pkgKey, pkg := range l.Packages {
		for _, edges := range []map[string]string{pkg.Dependencies, pkg.OptionalDependencies, pkg.PeerDependencies} {
			for depName, depKey := range edges {
				if _, ok := l.Packages[depKey]; !ok {
					return &InvariantError{Reason: fmt.Sprintf("package %q dependency %q targets unknown package %q", pkgKey, depName, depKey)}
				}
			}
		}
	}
	return nil
}

// Build constructs a Lockfile from a package.json and the resolved package
// set produced by pkgresolve.Resolve. Dependency specs in both the root
// project and each resolved package are rewritten into "<name>@<version>"
// keys pointing at entries in resolved.
func Build(pkg *fs.PackageJSON, resolved map[string]*pkgresolve.Resolved, howthVersion, generatedAt string) (*Lockfile, error) {
	byName := map[string]string{} // name -> chosen "name@version" key (first resolution wins, matches single-version-per-name assumption of this resolver)
	for k, r := range resolved {
		if _, ok := byName[r.Name]; !ok {
			byName[r.Name] = k
		}
	}

	lf := &Lockfile{
		LockfileVersion: SchemaVersion,
		Meta:            Meta{HowthVersion: howthVersion, GeneratedAt: generatedAt},
		Root:            Root{Name: pkg.Name, Version: pkg.Version},
		Dependencies:    map[string]RootDependency{},
		Packages:        map[string]*Package{},
	}

	addRoot := func(deps map[string]string, kind string) error {
		for name, rangeSpec := range deps {
			resolvedKey, ok := byName[name]
			if !ok {
				return fmt.Errorf("no resolution recorded for root dependency %q", name)
			}
			lf.Dependencies[name] = RootDependency{Range: rangeSpec, Kind: kind, Resolved: resolvedKey}
		}
		return nil
	}
	if err := addRoot(pkg.Dependencies, "dependencies"); err != nil {
		return nil, err
	}
	if err := addRoot(pkg.OptionalDependencies, "optionalDependencies"); err != nil {
		return nil, err
	}

	edgeKeys := func(deps map[string]string) map[string]string {
		if len(deps) == 0 {
			return nil
		}
		out := map[string]string{}
		for name := range deps {
			if k, ok := byName[name]; ok {
				out[name] = k
			}
		}
		return out
	}

	for k, r := range resolved {
		resolution := ResolutionRegistry
		if r.Tarball == "" {
			resolution = ResolutionTarball
		}
		lf.Packages[k] = &Package{
			Version:              r.Version,
			Integrity:            r.Integrity,
			Resolution:           resolution,
			AliasFor:             r.AliasFor,
			Dependencies:         edgeKeys(r.Dependencies),
			OptionalDependencies: edgeKeys(r.OptionalDependencies),
			PeerDependencies:     edgeKeys(r.PeerDependencies),
			HasInstallScript:     r.HasInstallScript,
			Os:                   r.Os,
			Cpu:                  r.Cpu,
		}
	}

	if err := lf.Validate(); err != nil {
		return nil, err
	}
	return lf, nil
}

// Marshal serializes the lockfile with stable indentation. Map keys are
// already emitted in sorted order by encoding/json.
func (l *Lockfile) Marshal() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// Write atomically persists the lockfile to path (spec §5 "Atomic writes").
func (l *Lockfile) Write(path fs.AbsolutePath) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(path.String(), data, 0o644)
}

// ErrVersionMismatch is returned by Read when lockfile_version exceeds
// SchemaVersion (spec §9 "the reader rejects higher versions ... rather
// than attempting forward compatibility").
type ErrVersionMismatch struct {
	Found int
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("lockfile_version %d is newer than supported version %d", e.Found, SchemaVersion)
}

// Read parses and validates a lockfile from disk.
func Read(path fs.AbsolutePath) (*Lockfile, error) {
	data, err := path.ReadFile()
	if err != nil {
		return nil, err
	}
	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("invalid lockfile JSON: %w", err)
	}
	if lf.LockfileVersion > SchemaVersion {
		return nil, &ErrVersionMismatch{Found: lf.LockfileVersion}
	}
	if err := lf.Validate(); err != nil {
		return nil, err
	}
	return &lf, nil
}

// SortedPackageKeys returns Packages' keys in lexicographic order, handy
// for any caller that wants to walk the lockfile deterministically without
// relying on map iteration order.
func (l *Lockfile) SortedPackageKeys() []string {
	keys := make([]string, 0, len(l.Packages))
	for k := range l.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
