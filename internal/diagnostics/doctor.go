package diagnostics

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/howth-dev/howth/internal/fs"
)

// Severity levels for doctor findings (spec §4.12 "pkg doctor").
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single doctor check result.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Package  string   `json:"package,omitempty"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
}

// DoctorReport is "pkg doctor"'s output: sorted findings plus a summary
// of counts by severity.
type DoctorReport struct {
	Findings []Finding      `json:"findings"`
	Summary  map[string]int `json:"summary"`
}

const (
	codeOrphanPackage      = "ORPHAN_PACKAGE"
	codeMissingDependency  = "MISSING_DEPENDENCY"
	codeInvalidPackageJSON = "INVALID_PACKAGE_JSON"
)

// Doctor runs the fixed set of checks spec §4.12 names: packages present
// on disk but unreachable from the root (orphans), dependency edges whose
// target is missing from the tree, and package.json files that failed to
// parse during the tree walk.
func Doctor(root string, rootPkg *fs.PackageJSON) (*DoctorReport, error) {
	graph, err := Graph(root, rootPkg, defaultMaxDepth)
	if err != nil {
		return nil, err
	}

	present := map[string]bool{}
	for _, n := range append(append([]PackageNode{}, graph.Nodes...), graph.Orphans...) {
		present[n.Name] = true
	}

	var findings []Finding
	for _, orphan := range graph.Orphans {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Code:     codeOrphanPackage,
			Package:  orphan.Name,
			Path:     orphan.Path,
			Message:  "package is installed but unreachable from the root package.json",
		})
	}

	for _, n := range graph.Nodes {
		for _, dep := range n.Dependencies {
			if !present[dep] {
				findings = append(findings, Finding{
					Severity: SeverityError,
					Code:     codeMissingDependency,
					Package:  n.Name,
					Path:     n.Path,
					Message:  "dependency \"" + dep + "\" is not installed",
				})
			}
		}
	}

	findings = append(findings, invalidPackageJSONFindings(filepath.Join(root, "node_modules"))...)

	sort.Slice(findings, func(i, j int) bool {
		si, sj := findings[i].Severity, findings[j].Severity
		if si != sj {
			return severityRank(si) > severityRank(sj)
		}
		if findings[i].Code != findings[j].Code {
			return findings[i].Code < findings[j].Code
		}
		if findings[i].Package != findings[j].Package {
			return findings[i].Package < findings[j].Package
		}
		return findings[i].Path < findings[j].Path
	})

	summary := map[string]int{}
	for _, f := range findings {
		summary[string(f.Severity)]++
	}

	return &DoctorReport{Findings: findings, Summary: summary}, nil
}

func severityRank(s Severity) int {
	if s == SeverityError {
		return 1
	}
	return 0
}

// invalidPackageJSONFindings re-walks the tree looking specifically for
// package.json files that exist but fail to parse, a case indexTree
// silently skips since it's built for the happy path.
func invalidPackageJSONFindings(nodeModules string) []Finding {
	var findings []Finding
	walkInvalid(nodeModules, &findings)
	return findings
}

func walkInvalid(dir string, findings *[]Finding) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == ".bin" || (len(name) > 0 && name[0] == '.' && name != ".pnpm") {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Lstat(path)
		if err != nil || info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
			continue
		}
		pkgJSONPath := filepath.Join(path, "package.json")
		if fs.FileExists(pkgJSONPath) {
			if _, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(pkgJSONPath)); err != nil {
				*findings = append(*findings, Finding{
					Severity: SeverityError,
					Code:     codeInvalidPackageJSON,
					Path:     pkgJSONPath,
					Message:  "package.json failed to parse: " + err.Error(),
				})
			}
		}
		walkInvalid(path, findings)
	}
}
