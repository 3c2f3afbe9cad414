// Package install orchestrates spec §4.3/§4.4 end to end: resolve a
// package.json against the registry, fetch and extract tarballs into the
// content store, write the lockfile, and link the result into
// node_modules. None of the teacher's packages wire these stages together
// (turborepo shells out to pnpm/npm/yarn rather than implementing install
// itself), so this is new orchestration grounded on the shape of its own
// internal/pkgresolve, internal/lockfile, and internal/linker packages
// plus internal/registry for the fetch.
package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/hashing"
	"github.com/howth-dev/howth/internal/linker"
	"github.com/howth-dev/howth/internal/lockfile"
	"github.com/howth-dev/howth/internal/pkgresolve"
	"github.com/howth-dev/howth/internal/registry"
	"github.com/howth-dev/howth/internal/util"
)

// maxConcurrentFetches bounds in-flight tarball downloads (spec §5
// "Package fetches are bounded at 32 concurrent requests").
const maxConcurrentFetches = 32

// Result summarizes one install run for the caller.
type Result struct {
	Installed int
	Lockfile  *lockfile.Lockfile
}

// Run resolves pkg against client, fetches and extracts every resolved
// tarball, writes the lockfile to root/howth-lock.json, and links the
// tree into root/node_modules. howthVersion tags the lockfile's Meta.
func Run(ctx context.Context, client *registry.Client, store *linker.ContentStore, root fs.AbsolutePath, pkg *fs.PackageJSON, howthVersion string) (*Result, error) {
	resolved, err := pkgresolve.Resolve(ctx, client, pkg, pkgresolve.Options{IncludeDev: true, IncludeOptional: true})
	if err != nil {
		return nil, err
	}

	packages, err := fetchAndExtract(ctx, client, store, resolved)
	if err != nil {
		return nil, err
	}

	lf, err := lockfile.Build(pkg, resolved, howthVersion, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	if err := lf.Write(root.Join("howth-lock.json")); err != nil {
		return nil, err
	}

	topLevel := map[string]string{}
	for name := range pkg.Dependencies {
		if key, ok := findKey(resolved, name); ok {
			topLevel[name] = key
		}
	}
	for name := range pkg.DevDependencies {
		if key, ok := findKey(resolved, name); ok {
			topLevel[name] = key
		}
	}

	l := &linker.Linker{Store: store}
	if err := l.Link(root, packages, topLevel); err != nil {
		return nil, err
	}

	return &Result{Installed: len(packages), Lockfile: lf}, nil
}

func findKey(resolved map[string]*pkgresolve.Resolved, name string) (string, bool) {
	for k, r := range resolved {
		if r.Name == name {
			return k, true
		}
	}
	return "", false
}

// fetchAndExtract downloads and unpacks every resolved package's tarball
// concurrently, verifying integrity before extraction (spec §4.3 "Integrity
// verification").
func fetchAndExtract(ctx context.Context, client *registry.Client, store *linker.ContentStore, resolved map[string]*pkgresolve.Resolved) (map[string]*linker.Package, error) {
	keys := make([]string, 0, len(resolved))
	for k := range resolved {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	packages := make(map[string]*linker.Package, len(resolved))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for _, k := range keys {
		k := k
		r := resolved[k]
		g.Go(func() error {
			body, err := client.FetchTarball(gctx, registry.Dist{Tarball: r.Tarball, Integrity: r.Integrity, Shasum: r.Shasum})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", k, err)
			}
			if err := registry.VerifyIntegrity(body, registry.Dist{Integrity: r.Integrity, Shasum: r.Shasum}); err != nil {
				return fmt.Errorf("integrity %s: %w", k, err)
			}
			files, bin, err := extractTarball(store, body)
			if err != nil {
				return fmt.Errorf("extract %s: %w", k, err)
			}
			pkg := &linker.Package{
				Name:         r.Name,
				Version:      r.Version,
				Files:        files,
				Dependencies: map[string]string{},
				Bin:          bin,
			}
			for dep := range r.Dependencies {
				if depKey, ok := findKey(resolved, dep); ok {
					pkg.Dependencies[dep] = depKey
				}
			}
			mu.Lock()
			packages[k] = pkg
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return packages, nil
}

// extractTarball unpacks an npm tarball (always rooted at a single
// "package/" directory) into the content store, returning the package's
// file manifest and any executable files under its bin/ convention.
func extractTarball(store *linker.ContentStore, body []byte) (linker.FileManifest, map[string]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	defer util.CloseAndIgnoreError(gz)

	manifest := linker.FileManifest{}
	bin := map[string]string{}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel := strings.TrimPrefix(hdr.Name, "package/")
		if rel == "" || rel == hdr.Name {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, err
		}
		hash := hashing.HashBytes(content)
		if err := store.Put(hash, content); err != nil {
			return nil, nil, err
		}
		manifest[rel] = hash
		if hdr.Mode&0o111 != 0 && strings.HasPrefix(rel, "bin/") {
			bin[strings.TrimPrefix(rel, "bin/")] = rel
		}
	}
	return manifest, bin, nil
}
