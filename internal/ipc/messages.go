package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/howth-dev/howth/internal/ipcerr"
)

// Per-domain schema versions (spec §4.11 "Schema versions"). Each
// versions its own response payload independently of ProtoSchemaVersion
// and of the others; a breaking change to one bumps only that constant.
const (
	RunPlanSchemaVersion    = 1
	BuildGraphSchemaVersion = 1
	PkgGraphSchemaVersion   = 1
)

// Kind tags a Request or Response payload (spec §9 "Tagged unions over
// inheritance"). On the wire the tag sits beside the fields, which are
// nested under "payload": {"kind": "...", "payload": {...fields}}.
type Kind string

const (
	KindPing          Kind = "ping"
	KindShutdown      Kind = "shutdown"
	KindRun           Kind = "run"
	KindWatchStart    Kind = "watch_start"
	KindWatchStop     Kind = "watch_stop"
	KindWatchStatus   Kind = "watch_status"
	KindPkgAdd        Kind = "pkg_add"
	KindPkgGraph      Kind = "pkg_graph"
	KindPkgExplain    Kind = "pkg_explain"
	KindPkgWhy        Kind = "pkg_why"
	KindPkgDoctor     Kind = "pkg_doctor"
	KindPkgInstall    Kind = "pkg_install"
	KindPkgCacheList  Kind = "pkg_cache_list"
	KindPkgCachePrune Kind = "pkg_cache_prune"
	KindBuild         Kind = "build"
	KindWatchBuild    Kind = "watch_build"
	KindError         Kind = "error"
)

// Envelope is the wire shape of every Request and Response: a kind tag
// plus the kind-specific payload as raw JSON, decoded once the caller
// has switched on Kind.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode builds an Envelope from a kind and a payload value.
func Encode(kind Kind, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals e's payload into out, which must be a pointer to
// the struct matching e.Kind.
func (e Envelope) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

// ---- Request payloads -------------------------------------------------

type PingRequest struct {
	Nonce string `json:"nonce"`
}

type ShutdownRequest struct{}

type RunRequest struct {
	Entry string   `json:"entry"`
	Args  []string `json:"args"`
	Cwd   string   `json:"cwd,omitempty"`
}

type WatchStartRequest struct {
	Roots []string `json:"roots"`
}

type WatchStopRequest struct{}

type WatchStatusRequest struct{}

type PkgAddRequest struct {
	Specs []string `json:"specs"`
	Dev   bool     `json:"dev,omitempty"`
}

type PkgGraphRequest struct {
	MaxDepth int `json:"max_depth,omitempty"`
}

type PkgExplainRequest struct {
	Specifier string `json:"specifier"`
	ParentDir string `json:"parent_dir"`
}

type PkgWhyRequest struct {
	Target    string `json:"target"`
	MaxChains int    `json:"max_chains,omitempty"`
}

type PkgDoctorRequest struct{}

type PkgInstallRequest struct {
	Frozen bool `json:"frozen,omitempty"`
}

type PkgCacheListRequest struct{}

type PkgCachePruneRequest struct{}

type BuildRequest struct {
	Targets     []string `json:"targets,omitempty"`
	Force       bool     `json:"force,omitempty"`
	DryRun      bool     `json:"dry_run,omitempty"`
	MaxParallel int      `json:"max_parallel,omitempty"`
}

type WatchBuildRequest struct {
	Targets []string `json:"targets,omitempty"`
}

// ---- Response payloads -------------------------------------------------

type PongResponse struct {
	Nonce string `json:"nonce"`
}

type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

type RunResponse struct {
	SchemaVersion int      `json:"schema_version"`
	Entry         string   `json:"entry"`
	Resolved      string   `json:"resolved"`
	Command       []string `json:"command"`
}

type WatchStartResponse struct {
	Running bool `json:"running"`
}

type WatchStopResponse struct {
	Running bool `json:"running"`
}

type WatchStatusResponse struct {
	Running bool     `json:"running"`
	Roots   []string `json:"roots"`
}

type PkgAddResponse struct {
	Added []string `json:"added"`
}

type PkgGraphResponse struct {
	SchemaVersion int             `json:"schema_version"`
	Nodes         json.RawMessage `json:"nodes"`
	Orphans       json.RawMessage `json:"orphans"`
}

type PkgExplainResponse struct {
	Steps    json.RawMessage `json:"steps"`
	Resolved string          `json:"resolved,omitempty"`
}

type PkgWhyResponse struct {
	Chains json.RawMessage `json:"chains"`
}

type PkgDoctorResponse struct {
	Findings json.RawMessage `json:"findings"`
	Summary  json.RawMessage `json:"summary"`
}

type PkgInstallResponse struct {
	Installed int `json:"installed"`
}

// CacheBlob is one entry of the content-addressed package cache.
type CacheBlob struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

type PkgCacheListResponse struct {
	Blobs      []CacheBlob `json:"blobs"`
	TotalBytes int64       `json:"total_bytes"`
}

type PkgCachePruneResponse struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
}

type BuildResponse struct {
	SchemaVersion int             `json:"schema_version"`
	Nodes         json.RawMessage `json:"nodes"`
	OK            bool            `json:"ok"`
}

type WatchBuildEvent struct {
	SchemaVersion int             `json:"schema_version"`
	TriggeredAt   string          `json:"triggered_at"`
	Nodes         json.RawMessage `json:"nodes"`
	OK            bool            `json:"ok"`
}

// ErrorResponse is the wire shape of the Error response variant (spec
// §4.11 "A Response is a tagged union of corresponding result types
// plus Error { code, message }").
type ErrorResponse struct {
	Code    ipcerr.Code `json:"code"`
	Message string      `json:"message"`
	Path    string      `json:"path,omitempty"`
}

// EncodeError builds an error Envelope from an *ipcerr.Error.
func EncodeError(err *ipcerr.Error) Envelope {
	e, _ := Encode(KindError, ErrorResponse{Code: err.Code, Message: err.Message, Path: err.Path})
	return e
}

// AsError reports whether e is an error envelope and decodes it.
func (e Envelope) AsError() (ErrorResponse, bool) {
	if e.Kind != KindError {
		return ErrorResponse{}, false
	}
	var resp ErrorResponse
	if err := e.Decode(&resp); err != nil {
		return ErrorResponse{}, false
	}
	return resp, true
}

// UnknownKindError is returned by request dispatch when Kind does not
// match any known request variant.
type UnknownKindError struct {
	Kind Kind
}

func (e UnknownKindError) Error() string {
	return fmt.Sprintf("ipc: unknown request kind %q", e.Kind)
}
