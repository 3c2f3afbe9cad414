package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/howth-dev/howth/internal/buildgraph"
	"github.com/howth-dev/howth/internal/config"
	"github.com/howth-dev/howth/internal/diagnostics"
	envpkg "github.com/howth-dev/howth/internal/env"
	"github.com/howth-dev/howth/internal/executor"
	"github.com/howth-dev/howth/internal/filewatcher"
	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/install"
	"github.com/howth-dev/howth/internal/ipc"
	"github.com/howth-dev/howth/internal/ipcerr"
	"github.com/howth-dev/howth/internal/linker"
	"github.com/howth-dev/howth/internal/resolver"
)

// dispatch handles one decoded request, sending exactly one response
// envelope (or, for watch_build, a stream of them) on conn. It reports
// true when the connection should be closed after this request (spec
// §4.11 "Shutdown"): every other request keeps the connection open for
// further requests.
func (d *Daemon) dispatch(conn *ipc.Conn, env ipc.Envelope) bool {
	switch env.Kind {
	case ipc.KindPing:
		var req ipc.PingRequest
		if !d.decode(conn, env, &req) {
			return false
		}
		d.send(conn, ipc.KindPing, ipc.PongResponse{Nonce: req.Nonce})
		return false

	case ipc.KindShutdown:
		d.send(conn, ipc.KindShutdown, ipc.ShutdownResponse{Accepted: true})
		return true

	case ipc.KindRun:
		d.handleRun(conn, env)
		return false

	case ipc.KindWatchStart:
		d.handleWatchStart(conn, env)
		return false

	case ipc.KindWatchStop:
		d.handleWatchStop(conn)
		return false

	case ipc.KindWatchStatus:
		d.handleWatchStatus(conn)
		return false

	case ipc.KindPkgAdd:
		d.handlePkgAdd(conn, env)
		return false

	case ipc.KindPkgInstall:
		d.handlePkgInstall(conn, env)
		return false

	case ipc.KindPkgCacheList:
		d.handlePkgCacheList(conn)
		return false

	case ipc.KindPkgCachePrune:
		d.handlePkgCachePrune(conn)
		return false

	case ipc.KindPkgGraph:
		d.handlePkgGraph(conn, env)
		return false

	case ipc.KindPkgExplain:
		d.handlePkgExplain(conn, env)
		return false

	case ipc.KindPkgWhy:
		d.handlePkgWhy(conn, env)
		return false

	case ipc.KindPkgDoctor:
		d.handlePkgDoctor(conn)
		return false

	case ipc.KindBuild:
		d.handleBuild(conn, env)
		return false

	case ipc.KindWatchBuild:
		d.handleWatchBuild(conn, env)
		return false

	default:
		d.sendErr(conn, ipcerr.New(ipcerr.InvalidRequest, ipc.UnknownKindError{Kind: env.Kind}.Error()))
		return false
	}
}

func (d *Daemon) decode(conn *ipc.Conn, env ipc.Envelope, out interface{}) bool {
	if err := env.Decode(out); err != nil {
		d.sendErr(conn, ipcerr.New(ipcerr.InvalidRequest, err.Error()))
		return false
	}
	return true
}

func (d *Daemon) send(conn *ipc.Conn, kind ipc.Kind, payload interface{}) {
	if err := conn.Send(kind, payload); err != nil {
		d.logError(err)
	}
}

func (d *Daemon) sendErr(conn *ipc.Conn, err *ipcerr.Error) {
	if sendErr := conn.SendEnvelope(ipc.EncodeError(err)); sendErr != nil {
		d.logError(sendErr)
	}
}

// rootPackageJSON reads and caches the project's root package.json,
// using d.caches.PackageJSON like every other daemon component does.
func (d *Daemon) rootPackageJSON() (*fs.PackageJSON, error) {
	path := filepath.Join(d.repoRoot, "package.json")
	if pkg, ok := d.caches.PackageJSON.Get(path); ok {
		return pkg, nil
	}
	pkg, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(path))
	if err != nil {
		return nil, err
	}
	d.caches.PackageJSON.Set(path, pkg)
	return pkg, nil
}

func (d *Daemon) handleRun(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.RunRequest
	if !d.decode(conn, env, &req) {
		return
	}
	cwd := req.Cwd
	if cwd == "" {
		cwd = d.repoRoot
	}
	res := resolver.Resolve(resolver.Request{Cwd: cwd, ParentDir: cwd, Specifier: req.Entry, Kind: resolver.Unknown})
	if res.Resolved == "" {
		d.sendErr(conn, ipcerr.WithPath(reasonToCode(res.Reason), "could not resolve run entry", req.Entry))
		return
	}
	command := append([]string{res.Resolved}, req.Args...)
	d.send(conn, ipc.KindRun, ipc.RunResponse{
		SchemaVersion: ipc.RunPlanSchemaVersion,
		Entry:         req.Entry,
		Resolved:      res.Resolved,
		Command:       command,
	})
}

func reasonToCode(r resolver.Reason) ipcerr.Code {
	switch r {
	case resolver.ReasonSpecifierInvalid:
		return ipcerr.SpecifierInvalid
	case resolver.ReasonUnsupportedScheme:
		return ipcerr.UnsupportedScheme
	case resolver.ReasonIsDirectory:
		return ipcerr.IsDirectory
	case resolver.ReasonNodeModulesNotFound:
		return ipcerr.NodeModulesNotFound
	case resolver.ReasonPackageJSONInvalid:
		return ipcerr.PackageJSONInvalid
	case resolver.ReasonPackageMainNotFound:
		return ipcerr.PackageMainNotFound
	case resolver.ReasonExportsTargetMissing:
		return ipcerr.ExportsTargetMissing
	case resolver.ReasonExportsNotFound:
		return ipcerr.ExportsNotFound
	case resolver.ReasonImportsNotFound:
		return ipcerr.ImportsNotFound
	default:
		return ipcerr.NotFound
	}
}

func (d *Daemon) handleWatchStart(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.WatchStartRequest
	if !d.decode(conn, env, &req) {
		return
	}
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if !d.watchRunning {
		if err := d.watcher.Start(); err != nil {
			d.sendErr(conn, ipcerr.Wrap(err, ipcerr.WatchAlreadyRunning))
			return
		}
		d.watchRunning = true
		d.watchRoots = req.Roots
	}
	d.send(conn, ipc.KindWatchStart, ipc.WatchStartResponse{Running: true})
}

func (d *Daemon) handleWatchStop(conn *ipc.Conn) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if d.watchRunning {
		if err := d.watcher.Stop(); err != nil {
			d.sendErr(conn, ipcerr.Wrap(err, ipcerr.WatchNotRunning))
			return
		}
		d.watchRunning = false
	}
	d.send(conn, ipc.KindWatchStop, ipc.WatchStopResponse{Running: false})
}

func (d *Daemon) handleWatchStatus(conn *ipc.Conn) {
	d.watchMu.Lock()
	running := d.watchRunning
	roots := d.watchRoots
	d.watchMu.Unlock()
	d.send(conn, ipc.KindWatchStatus, ipc.WatchStatusResponse{Running: running, Roots: roots})
}

func (d *Daemon) handlePkgAdd(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.PkgAddRequest
	if !d.decode(conn, env, &req) {
		return
	}
	pkgPath := filepath.Join(d.repoRoot, "package.json")
	pkg, err := fs.ReadPackageJSON(fs.UnsafeToAbsolutePath(pkgPath))
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PackageJSONInvalid))
		return
	}

	target := pkg.Dependencies
	if req.Dev {
		target = pkg.DevDependencies
	}
	if target == nil {
		target = map[string]string{}
	}
	added := make([]string, 0, len(req.Specs))
	for _, spec := range req.Specs {
		name, rangeSpec := splitSpec(spec)
		target[name] = rangeSpec
		added = append(added, name)
	}
	if req.Dev {
		pkg.DevDependencies = target
	} else {
		pkg.Dependencies = target
	}

	raw, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgSpecInvalid))
		return
	}
	if err := fs.WriteFileAtomic(pkgPath, raw, 0o644); err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgLinkFailed))
		return
	}
	d.caches.PackageJSON.Invalidate(pkgPath)

	d.send(conn, ipc.KindPkgAdd, ipc.PkgAddResponse{Added: added})
}

func splitSpec(spec string) (name, rangeSpec string) {
	if i := lastIndexByte(spec, '@'); i > 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, "latest"
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (d *Daemon) handlePkgInstall(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.PkgInstallRequest
	if !d.decode(conn, env, &req) {
		return
	}
	pkg, err := d.rootPackageJSON()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PackageJSONInvalid))
		return
	}

	store, err := d.contentStore()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgDownloadFailed))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	result, err := install.Run(ctx, d.registry, store, fs.UnsafeToAbsolutePath(d.repoRoot), pkg, d.version)
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgDownloadFailed))
		return
	}
	d.send(conn, ipc.KindPkgInstall, ipc.PkgInstallResponse{Installed: result.Installed})
}

func (d *Daemon) contentStore() (*linker.ContentStore, error) {
	storeDir, err := config.ContentStoreDir()
	if err != nil {
		return nil, err
	}
	return &linker.ContentStore{Root: fs.UnsafeToAbsolutePath(storeDir)}, nil
}

func (d *Daemon) handlePkgCacheList(conn *ipc.Conn) {
	store, err := d.contentStore()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgCacheIOError))
		return
	}
	blobs, err := store.List()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgCacheIOError))
		return
	}
	resp := ipc.PkgCacheListResponse{Blobs: make([]ipc.CacheBlob, 0, len(blobs))}
	for _, b := range blobs {
		resp.Blobs = append(resp.Blobs, ipc.CacheBlob{Hash: b.Hash, Size: b.Size})
		resp.TotalBytes += b.Size
	}
	d.send(conn, ipc.KindPkgCacheList, resp)
}

func (d *Daemon) handlePkgCachePrune(conn *ipc.Conn) {
	store, err := d.contentStore()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgCacheIOError))
		return
	}
	removed, freed, err := store.Prune()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PkgCacheIOError))
		return
	}
	d.send(conn, ipc.KindPkgCachePrune, ipc.PkgCachePruneResponse{Removed: removed, FreedBytes: freed})
}

func (d *Daemon) handlePkgGraph(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.PkgGraphRequest
	if !d.decode(conn, env, &req) {
		return
	}
	pkg, err := d.rootPackageJSON()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PackageJSONInvalid))
		return
	}
	graph, err := diagnostics.Graph(d.repoRoot, pkg, req.MaxDepth)
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.InternalError))
		return
	}
	nodes, _ := json.Marshal(graph.Nodes)
	orphans, _ := json.Marshal(graph.Orphans)
	d.send(conn, ipc.KindPkgGraph, ipc.PkgGraphResponse{
		SchemaVersion: ipc.PkgGraphSchemaVersion,
		Nodes:         nodes,
		Orphans:       orphans,
	})
}

func (d *Daemon) handlePkgExplain(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.PkgExplainRequest
	if !d.decode(conn, env, &req) {
		return
	}
	parentDir := req.ParentDir
	if parentDir == "" {
		parentDir = d.repoRoot
	}
	result := diagnostics.Explain(resolver.Request{Cwd: d.repoRoot, ParentDir: parentDir, Specifier: req.Specifier, Kind: resolver.Unknown})
	steps, _ := json.Marshal(result.TriedPaths)
	d.send(conn, ipc.KindPkgExplain, ipc.PkgExplainResponse{Steps: steps, Resolved: result.Resolved})
}

func (d *Daemon) handlePkgWhy(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.PkgWhyRequest
	if !d.decode(conn, env, &req) {
		return
	}
	pkg, err := d.rootPackageJSON()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PackageJSONInvalid))
		return
	}
	chains, err := diagnostics.Why(d.repoRoot, pkg, req.Target, req.MaxChains)
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.InternalError))
		return
	}
	raw, _ := json.Marshal(chains)
	d.send(conn, ipc.KindPkgWhy, ipc.PkgWhyResponse{Chains: raw})
}

func (d *Daemon) handlePkgDoctor(conn *ipc.Conn) {
	pkg, err := d.rootPackageJSON()
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.PackageJSONInvalid))
		return
	}
	report, err := diagnostics.Doctor(d.repoRoot, pkg)
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.InternalError))
		return
	}
	findings, _ := json.Marshal(report.Findings)
	summary, _ := json.Marshal(report.Summary)
	d.send(conn, ipc.KindPkgDoctor, ipc.PkgDoctorResponse{Findings: findings, Summary: summary})
}

// buildGraphFor constructs and hashes the project's full build graph.
// targets is not used here: the graph always holds every node, and the
// executor restricts the run to the targets via Options.Targets.
func (d *Daemon) buildGraphFor(targets []string) (*buildgraph.Graph, error) {
	pkg, err := d.rootPackageJSON()
	if err != nil {
		return nil, err
	}
	g, err := buildgraph.FromPackageJSON(d.repoRoot, pkg)
	if err != nil {
		return nil, err
	}
	g.Normalize()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := g.ComputeHashes(envpkg.FromOS()); err != nil {
		return nil, err
	}
	_ = targets
	return g, nil
}

func (d *Daemon) handleBuild(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.BuildRequest
	if !d.decode(conn, env, &req) {
		return
	}
	g, err := d.buildGraphFor(req.Targets)
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.BuildPackageJSONInvalid))
		return
	}
	maxParallel := req.MaxParallel
	if maxParallel <= 0 && d.cfg != nil {
		maxParallel = d.cfg.MaxParallel
	}
	result, err := executor.Execute(g, d.caches.Build, envpkg.FromOS(), executor.Options{
		Force:       req.Force,
		DryRun:      req.DryRun,
		MaxParallel: maxParallel,
		Targets:     req.Targets,
	})
	if err != nil {
		d.sendErr(conn, ipcerr.Wrap(err, ipcerr.BuildScriptFailed))
		return
	}
	nodes, _ := json.Marshal(result.Nodes)
	d.send(conn, ipc.KindBuild, ipc.BuildResponse{
		SchemaVersion: ipc.BuildGraphSchemaVersion,
		Nodes:         nodes,
		OK:            result.OK,
	})
}

// handleWatchBuild runs the graph once, then streams one additional
// BuildResponse-shaped event (as a WatchBuildEvent envelope) per debounced
// rebuild wave until the client disconnects, per spec §4.8/§5 ("within a
// single watch-build session, rebuild-wave responses appear in wall-clock
// order").
func (d *Daemon) handleWatchBuild(conn *ipc.Conn, env ipc.Envelope) {
	var req ipc.WatchBuildRequest
	if !d.decode(conn, env, &req) {
		return
	}

	runOnce := func() {
		g, err := d.buildGraphFor(req.Targets)
		if err != nil {
			d.sendErr(conn, ipcerr.Wrap(err, ipcerr.BuildPackageJSONInvalid))
			return
		}
		result, err := executor.Execute(g, d.caches.Build, envpkg.FromOS(), executor.Options{Targets: req.Targets})
		if err != nil {
			d.sendErr(conn, ipcerr.Wrap(err, ipcerr.BuildScriptFailed))
			return
		}
		nodes, _ := json.Marshal(result.Nodes)
		d.send(conn, ipc.KindWatchBuild, ipc.WatchBuildEvent{
			SchemaVersion: ipc.BuildGraphSchemaVersion,
			TriggeredAt:   time.Now().UTC().Format(time.RFC3339Nano),
			Nodes:         nodes,
			OK:            result.OK,
		})
	}
	runOnce()

	d.watchMu.Lock()
	if !d.watchRunning {
		if err := d.watcher.Start(); err == nil {
			d.watchRunning = true
		}
	}
	d.watchMu.Unlock()

	notify := make(chan time.Time, 1)
	sub := &filewatcher.Subscriber{Root: d.repoRoot, Notify: notify}
	d.watcher.Subscribe(sub)
	defer d.watcher.Unsubscribe(sub)

	// The client signals it's done watching by sending any further
	// request (typically watch_stop) or by disconnecting; either way
	// Recv returns and this loop exits.
	stopped := make(chan struct{})
	go func() {
		_, _ = conn.Recv()
		close(stopped)
	}()

	for {
		select {
		case <-notify:
			runOnce()
		case <-stopped:
			return
		}
	}
}
