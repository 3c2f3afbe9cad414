// Package resolver implements spec §4.2: Node-compatible module resolution
// from a bare/relative/absolute specifier to a canonical file path, with
// exports/imports map evaluation, pattern keys, and extension probing.
package resolver

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/howth-dev/howth/internal/fs"
)

// Kind is the resolution channel: import/require semantics affect
// condition-key preference order during exports evaluation.
type Kind string

const (
	Import  Kind = "import"
	Require Kind = "require"
	Unknown Kind = "unknown"
)

// Reason is one of the fixed failure codes from spec §4.2.
type Reason string

const (
	ReasonSpecifierInvalid     Reason = "SPECIFIER_INVALID"
	ReasonUnsupportedScheme    Reason = "UNSUPPORTED_SCHEME"
	ReasonNotFound             Reason = "NOT_FOUND"
	ReasonIsDirectory          Reason = "IS_DIRECTORY"
	ReasonNodeModulesNotFound  Reason = "NODE_MODULES_NOT_FOUND"
	ReasonPackageJSONInvalid   Reason = "PACKAGE_JSON_INVALID"
	ReasonPackageMainNotFound  Reason = "PACKAGE_MAIN_NOT_FOUND"
	ReasonExportsTargetMissing Reason = "EXPORTS_TARGET_NOT_FOUND"
	ReasonExportsNotFound      Reason = "EXPORTS_NOT_FOUND"
	ReasonImportsNotFound      Reason = "IMPORTS_NOT_FOUND"
)

// extensions is the probe order used wherever a bare path needs an
// extension guessed.
var extensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json"}

// Request is the resolver's input tuple (spec §4.2 "Contract").
type Request struct {
	Cwd       string
	ParentDir string
	Specifier string
	Kind      Kind
}

// Result is either a resolved absolute path or a Reason explaining failure.
// TriedPaths is capped at 20 entries (spec §4.2 "Caching").
type Result struct {
	Resolved   string
	Reason     Reason
	TriedPaths []string
}

func ok(p string, tried []string) Result { return Result{Resolved: p, TriedPaths: cap20(tried)} }

func fail(reason Reason, tried []string) Result {
	return Result{Reason: reason, TriedPaths: cap20(tried)}
}

func cap20(tried []string) []string {
	if len(tried) <= 20 {
		return tried
	}
	return tried[:20]
}

// Resolve dispatches by specifier shape per spec §4.2 steps 1-6.
func Resolve(req Request) Result {
	var tried []string

	spec := req.Specifier
	switch {
	case spec == "":
		return fail(ReasonSpecifierInvalid, tried)
	case strings.Contains(spec, "://") || strings.HasPrefix(spec, "node:") || strings.HasPrefix(spec, "data:"):
		return fail(ReasonUnsupportedScheme, tried)
	case strings.HasPrefix(spec, "#"):
		return resolveImportsSpecifier(req, &tried)
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		target := path.Join(req.ParentDir, spec)
		return resolvePath(target, req.Kind, &tried)
	case path.IsAbs(spec):
		return resolvePath(spec, req.Kind, &tried)
	default:
		return resolveBareSpecifier(req, &tried)
	}
}

// resolvePath implements the "path-resolution subroutine": file, then
// directory (package.json exports/main, then index probing), then raw
// extension probing.
func resolvePath(target string, kind Kind, tried *[]string) Result {
	*tried = append(*tried, target)
	if fs.FileExists(target) {
		return ok(fs.NormalizePath(target), *tried)
	}
	if fs.IsDirectory(target) {
		pkgPath := path.Join(target, "package.json")
		if fs.FileExists(pkgPath) {
			pkg, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(pkgPath))
			if err != nil {
				return fail(ReasonPackageJSONInvalid, *tried)
			}
			if pkg.Exports != nil {
				if res := evaluateExportsRoot(target, pkg.Exports, kind, tried); res.Resolved != "" || res.Reason == ReasonExportsTargetMissing {
					return res
				}
			}
			if pkg.Main != "" {
				mainPath := path.Join(target, pkg.Main)
				*tried = append(*tried, mainPath)
				if fs.FileExists(mainPath) {
					return ok(fs.NormalizePath(mainPath), *tried)
				}
				if r := probeExtensions(mainPath, tried); r.Resolved != "" {
					return r
				}
				if r := probeIndex(mainPath, tried); r.Resolved != "" {
					return r
				}
			}
		}
		if r := probeIndex(target, tried); r.Resolved != "" {
			return r
		}
		return fail(ReasonPackageMainNotFound, *tried)
	}
	if r := probeExtensions(target, tried); r.Resolved != "" {
		return r
	}
	return fail(ReasonNotFound, *tried)
}

func probeExtensions(target string, tried *[]string) Result {
	for _, ext := range extensions {
		candidate := target + ext
		*tried = append(*tried, candidate)
		if fs.FileExists(candidate) {
			return ok(fs.NormalizePath(candidate), *tried)
		}
	}
	return Result{}
}

func probeIndex(dir string, tried *[]string) Result {
	for _, ext := range extensions {
		candidate := path.Join(dir, "index"+ext)
		*tried = append(*tried, candidate)
		if fs.FileExists(candidate) {
			return ok(fs.NormalizePath(candidate), *tried)
		}
	}
	return Result{}
}

// resolveBareSpecifier walks upward from ParentDir looking for
// node_modules/<pkg>, splitting the specifier into a package root (one
// segment, two for scoped packages) and an optional subpath.
func resolveBareSpecifier(req Request, tried *[]string) Result {
	pkgName, subpath := splitBareSpecifier(req.Specifier)
	if pkgName == "" {
		return fail(ReasonSpecifierInvalid, *tried)
	}

	dir := req.ParentDir
	for {
		candidate := path.Join(dir, "node_modules", pkgName)
		*tried = append(*tried, candidate)
		if fs.IsDirectory(candidate) {
			pkgPath := path.Join(candidate, "package.json")
			if fs.FileExists(pkgPath) {
				pkg, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(pkgPath))
				if err != nil {
					return fail(ReasonPackageJSONInvalid, *tried)
				}
				if pkg.Exports != nil {
					target := "./" + subpath
					if subpath == "" {
						target = "."
					}
					return evaluateExportsSubpath(candidate, pkg.Exports, target, req.Kind, tried)
				}
			}
			if subpath == "" {
				return resolvePath(candidate, req.Kind, tried)
			}
			return resolvePath(path.Join(candidate, subpath), req.Kind, tried)
		}
		parent := path.Dir(dir)
		if parent == dir {
			return fail(ReasonNodeModulesNotFound, *tried)
		}
		dir = parent
	}
}

func splitBareSpecifier(spec string) (pkgName, subpath string) {
	segs := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") {
		if len(segs) < 2 {
			return "", ""
		}
		pkgName = segs[0] + "/" + segs[1]
		subpath = strings.Join(segs[2:], "/")
		return
	}
	pkgName = segs[0]
	subpath = strings.Join(segs[1:], "/")
	return
}

// resolveImportsSpecifier implements `#`-prefixed subpath imports: walk
// upward from ParentDir until a package.json is found, then apply its
// `imports` map.
func resolveImportsSpecifier(req Request, tried *[]string) Result {
	dir := req.ParentDir
	for {
		pkgPath := path.Join(dir, "package.json")
		if fs.FileExists(pkgPath) {
			pkg, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(pkgPath))
			if err != nil {
				return fail(ReasonPackageJSONInvalid, *tried)
			}
			if pkg.Imports != nil {
				var raw map[string]interface{}
				if b, err := json.Marshal(pkg.Imports); err == nil {
					_ = json.Unmarshal(b, &raw)
				}
				if target, rest, found := matchMapEntry(raw, req.Specifier); found {
					r := evaluateTarget(dir, target, rest, req.Kind, tried)
					if r.Resolved != "" {
						return r
					}
				}
			}
			return fail(ReasonImportsNotFound, *tried)
		}
		parent := path.Dir(dir)
		if parent == dir {
			return fail(ReasonImportsNotFound, *tried)
		}
		dir = parent
	}
}

// evaluateExportsRoot handles the "." / root entry of an exports map when
// resolving a bare directory path (no subpath requested yet).
func evaluateExportsRoot(pkgDir string, exportsVal interface{}, kind Kind, tried *[]string) Result {
	return evaluateExportsSubpath(pkgDir, exportsVal, ".", kind, tried)
}

// evaluateExportsSubpath implements spec §4.2's "Exports evaluation":
// condition selection by Kind, one level of nested conditions, and
// longest-prefix pattern-key matching with lexicographic tie-break.
func evaluateExportsSubpath(pkgDir string, exportsVal interface{}, subpath string, kind Kind, tried *[]string) Result {
	raw, ok := normalizeExports(exportsVal)
	if !ok {
		return fail(ReasonExportsNotFound, *tried)
	}

	target, rest, found := matchMapEntry(raw, subpath)
	if !found {
		return fail(ReasonExportsNotFound, *tried)
	}
	r := evaluateTarget(pkgDir, target, rest, kind, tried)
	if r.Resolved == "" {
		return fail(ReasonExportsTargetMissing, *tried)
	}
	return r
}

// normalizeExports accepts either a flat map keyed by subpaths/conditions
// or a single string (shorthand for {".": "<string>"}).
func normalizeExports(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case string:
		return map[string]interface{}{".": t}, true
	case map[string]interface{}:
		// If none of the top-level keys look like subpaths ("." or "./...")
		// or conditions, this is a bare conditions object for the root.
		hasSubpathKeys := false
		for k := range t {
			if k == "." || strings.HasPrefix(k, "./") {
				hasSubpathKeys = true
				break
			}
		}
		if !hasSubpathKeys {
			return map[string]interface{}{".": t}, true
		}
		return t, true
	default:
		return nil, false
	}
}

// matchMapEntry finds the best entry for key in an exports/imports-shaped
// map: exact match first, then longest-prefix pattern key (exactly one
// `*`) with lexicographic tie-break.
func matchMapEntry(m map[string]interface{}, key string) (target interface{}, matchedStar string, found bool) {
	if v, ok := m[key]; ok {
		return v, "", true
	}

	var bestKey string
	var bestStar string
	bestPrefix := -1
	for k := range m {
		star := strings.Index(k, "*")
		if star < 0 {
			continue
		}
		prefix, suffix := k[:star], k[star+1:]
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) && len(key) >= len(prefix)+len(suffix) {
			starVal := key[len(prefix) : len(key)-len(suffix)]
			if len(prefix) > bestPrefix || (len(prefix) == bestPrefix && k < bestKey) {
				bestPrefix = len(prefix)
				bestKey = k
				bestStar = starVal
				target = m[k]
				found = true
			}
		}
	}
	return target, bestStar, found
}

// evaluateTarget resolves a matched exports/imports target value, which
// may be a string (possibly with a `*` substitution) or a nested
// conditions object.
func evaluateTarget(pkgDir string, target interface{}, starVal string, kind Kind, tried *[]string) Result {
	switch t := target.(type) {
	case string:
		return resolveStringTarget(pkgDir, t, starVal, kind, tried)
	case map[string]interface{}:
		for _, cond := range conditionOrder(kind) {
			if v, ok := t[cond]; ok {
				if r := evaluateTarget(pkgDir, v, starVal, kind, tried); r.Resolved != "" {
					return r
				}
			}
		}
		return Result{}
	default:
		return Result{}
	}
}

func conditionOrder(kind Kind) []string {
	switch kind {
	case Import:
		return []string{"import", "default"}
	case Require:
		return []string{"require", "default"}
	default:
		return []string{"default", "import", "require"}
	}
}

func resolveStringTarget(pkgDir, target, starVal string, kind Kind, tried *[]string) Result {
	if !strings.HasPrefix(target, "./") {
		return Result{}
	}
	resolved := target
	if starVal != "" {
		resolved = strings.Replace(target, "*", starVal, 1)
	}
	if !strings.HasPrefix(resolved, "./") || strings.Contains(resolved, "..") {
		return Result{}
	}
	abs := path.Join(pkgDir, resolved)
	*tried = append(*tried, abs)
	if fs.FileExists(abs) {
		return ok(fs.NormalizePath(abs), *tried)
	}
	return Result{}
}
