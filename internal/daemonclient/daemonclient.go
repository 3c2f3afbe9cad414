// Package daemonclient is a typed wrapper around the raw IPC envelope
// round trip (internal/ipc) over a connector.Client connection, giving
// the CLI layer one method per request kind instead of hand-rolled
// Send/Recv/Decode at every call site. Grounded on the teacher's own
// daemonclient, generalized from its grpc method-per-RPC shape to this
// project's envelope protocol.
package daemonclient

import (
	"github.com/howth-dev/howth/internal/daemon/connector"
	"github.com/howth-dev/howth/internal/ipc"
	"github.com/howth-dev/howth/internal/ipcerr"
)

// DaemonClient provides access to higher-level functionality from the
// daemon to a howth invocation.
type DaemonClient struct {
	client *connector.Client
}

// Status reports the daemon's on-disk locations. Grounded on the
// teacher's daemonclient.Status; the uptime field the teacher's grpc
// StatusRequest carried isn't part of this project's wire protocol (see
// DESIGN.md), so Status here is just the paths a caller needs to report
// or clean up.
type Status struct {
	LogFile  string `json:"log_file"`
	PidFile  string `json:"pid_file"`
	SockFile string `json:"sock_file"`
}

// New creates a new instance of a DaemonClient.
func New(client *connector.Client) *DaemonClient {
	return &DaemonClient{client: client}
}

// remoteError turns an error-kind envelope into an *ipcerr.Error so
// callers can classify it (spec §6 exit codes) the same way a local
// ipcerr.Error would be classified.
func remoteError(env ipc.Envelope) error {
	if errResp, ok := env.AsError(); ok {
		return &ipcerr.Error{Code: errResp.Code, Message: errResp.Message, Path: errResp.Path}
	}
	return nil
}

func (d *DaemonClient) roundTrip(kind ipc.Kind, req interface{}, out interface{}) error {
	if err := d.client.Send(kind, req); err != nil {
		return err
	}
	env, err := d.client.Recv()
	if err != nil {
		return err
	}
	if err := remoteError(env); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return env.Decode(out)
}

// Ping round-trips a nonce through the daemon to confirm it is alive
// and speaking this client's protocol version.
func (d *DaemonClient) Ping(nonce string) (string, error) {
	var resp ipc.PongResponse
	if err := d.roundTrip(ipc.KindPing, ipc.PingRequest{Nonce: nonce}, &resp); err != nil {
		return "", err
	}
	return resp.Nonce, nil
}

// Status returns the daemon's on-disk locations from the connector's
// already-resolved paths; no round trip is required.
func (d *DaemonClient) Status() *Status {
	return &Status{
		LogFile:  d.client.LogPath,
		PidFile:  d.client.PidPath,
		SockFile: d.client.SockPath,
	}
}

// Shutdown asks the daemon to exit gracefully.
func (d *DaemonClient) Shutdown() error {
	return d.roundTrip(ipc.KindShutdown, ipc.ShutdownRequest{}, &ipc.ShutdownResponse{})
}

// Run asks the daemon to resolve entry into a runnable command (spec
// §4.2 "howth run").
func (d *DaemonClient) Run(req ipc.RunRequest) (*ipc.RunResponse, error) {
	var resp ipc.RunResponse
	if err := d.roundTrip(ipc.KindRun, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WatchStart begins watching the given roots for invalidation.
func (d *DaemonClient) WatchStart(roots []string) (*ipc.WatchStartResponse, error) {
	var resp ipc.WatchStartResponse
	if err := d.roundTrip(ipc.KindWatchStart, ipc.WatchStartRequest{Roots: roots}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WatchStop stops the running watch, if any.
func (d *DaemonClient) WatchStop() (*ipc.WatchStopResponse, error) {
	var resp ipc.WatchStopResponse
	if err := d.roundTrip(ipc.KindWatchStop, ipc.WatchStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WatchStatus reports whether a watch is currently running.
func (d *DaemonClient) WatchStatus() (*ipc.WatchStatusResponse, error) {
	var resp ipc.WatchStatusResponse
	if err := d.roundTrip(ipc.KindWatchStatus, ipc.WatchStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgAdd adds specs to package.json (spec §4.1 "howth pkg add").
func (d *DaemonClient) PkgAdd(specs []string, dev bool) (*ipc.PkgAddResponse, error) {
	var resp ipc.PkgAddResponse
	if err := d.roundTrip(ipc.KindPkgAdd, ipc.PkgAddRequest{Specs: specs, Dev: dev}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgInstall runs the full resolve/fetch/link pipeline (spec §4.3/§4.4).
func (d *DaemonClient) PkgInstall(frozen bool) (*ipc.PkgInstallResponse, error) {
	var resp ipc.PkgInstallResponse
	if err := d.roundTrip(ipc.KindPkgInstall, ipc.PkgInstallRequest{Frozen: frozen}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgCacheList lists the blobs held in the content-addressed package
// cache (spec §6 "Package cache").
func (d *DaemonClient) PkgCacheList() (*ipc.PkgCacheListResponse, error) {
	var resp ipc.PkgCacheListResponse
	if err := d.roundTrip(ipc.KindPkgCacheList, ipc.PkgCacheListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgCachePrune removes cache blobs no longer linked into any project's
// node_modules.
func (d *DaemonClient) PkgCachePrune() (*ipc.PkgCachePruneResponse, error) {
	var resp ipc.PkgCachePruneResponse
	if err := d.roundTrip(ipc.KindPkgCachePrune, ipc.PkgCachePruneRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgGraph returns the node_modules dependency graph (spec §4.12 "pkg graph").
func (d *DaemonClient) PkgGraph(maxDepth int) (*ipc.PkgGraphResponse, error) {
	var resp ipc.PkgGraphResponse
	if err := d.roundTrip(ipc.KindPkgGraph, ipc.PkgGraphRequest{MaxDepth: maxDepth}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgExplain traces module resolution for a specifier (spec §4.12 "pkg explain").
func (d *DaemonClient) PkgExplain(specifier, parentDir string) (*ipc.PkgExplainResponse, error) {
	var resp ipc.PkgExplainResponse
	if err := d.roundTrip(ipc.KindPkgExplain, ipc.PkgExplainRequest{Specifier: specifier, ParentDir: parentDir}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgWhy enumerates dependency chains leading to target (spec §4.12 "pkg why").
func (d *DaemonClient) PkgWhy(target string, maxChains int) (*ipc.PkgWhyResponse, error) {
	var resp ipc.PkgWhyResponse
	if err := d.roundTrip(ipc.KindPkgWhy, ipc.PkgWhyRequest{Target: target, MaxChains: maxChains}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PkgDoctor runs the fixed diagnostic checks (spec §4.12 "pkg doctor").
func (d *DaemonClient) PkgDoctor() (*ipc.PkgDoctorResponse, error) {
	var resp ipc.PkgDoctorResponse
	if err := d.roundTrip(ipc.KindPkgDoctor, ipc.PkgDoctorRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Build runs the build graph once (spec §4.7 "howth build").
func (d *DaemonClient) Build(req ipc.BuildRequest) (*ipc.BuildResponse, error) {
	var resp ipc.BuildResponse
	if err := d.roundTrip(ipc.KindBuild, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WatchBuild sends the initial watch_build request and returns the
// first event; the caller should keep calling Next to receive
// subsequent rebuild-wave events until it decides to stop (spec §4.8
// "howth watch build").
func (d *DaemonClient) WatchBuild(req ipc.WatchBuildRequest) (*ipc.WatchBuildEvent, error) {
	if err := d.client.Send(ipc.KindWatchBuild, req); err != nil {
		return nil, err
	}
	return d.nextWatchBuildEvent()
}

// Next blocks for the next streamed watch_build event on the same
// connection used to start the stream.
func (d *DaemonClient) Next() (*ipc.WatchBuildEvent, error) {
	return d.nextWatchBuildEvent()
}

func (d *DaemonClient) nextWatchBuildEvent() (*ipc.WatchBuildEvent, error) {
	env, err := d.client.Recv()
	if err != nil {
		return nil, err
	}
	if err := remoteError(env); err != nil {
		return nil, err
	}
	var resp ipc.WatchBuildEvent
	if err := env.Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopWatchBuild sends a watch_stop request over the same connection to
// end the server's event stream (see internal/daemon/dispatch.go
// handleWatchBuild: any further received message ends the loop).
func (d *DaemonClient) StopWatchBuild() error {
	return d.client.Send(ipc.KindWatchStop, ipc.WatchStopRequest{})
}
