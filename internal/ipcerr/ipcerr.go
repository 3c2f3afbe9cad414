// Package ipcerr defines the SCREAMING_SNAKE_CASE error code taxonomy
// carried across the IPC boundary (spec §6 "Error codes", §7 "Error
// handling design"), and the Error type that wraps a code, message, and
// optional path into the wire-level Error response variant. Grounded on
// the teacher's use of github.com/pkg/errors for wrapping at component
// boundaries — Error here plays the same "transport-level code at the
// component boundary" role spec §7 describes, just with a stable string
// code instead of a Go error chain, since codes (not chains) cross the
// wire.
package ipcerr

import "fmt"

// Code is a stable, versioned error code string. Codes are partitioned
// by domain and never renumbered or renamed once shipped (spec §6
// "Codes are stable across versions").
type Code string

const (
	// Protocol
	ProtoVersionMismatch Code = "PROTO_VERSION_MISMATCH"
	InvalidRequest       Code = "INVALID_REQUEST"
	InternalError        Code = "INTERNAL_ERROR"

	// Run plan
	EntryNotFound Code = "ENTRY_NOT_FOUND"
	EntryIsDir    Code = "ENTRY_IS_DIR"
	EntryInvalid  Code = "ENTRY_INVALID"
	CwdInvalid    Code = "CWD_INVALID"

	// Resolver
	SpecifierInvalid     Code = "SPECIFIER_INVALID"
	UnsupportedScheme    Code = "UNSUPPORTED_SCHEME"
	NotFound             Code = "NOT_FOUND"
	IsDirectory          Code = "IS_DIRECTORY"
	NodeModulesNotFound  Code = "NODE_MODULES_NOT_FOUND"
	PackageJSONInvalid   Code = "PACKAGE_JSON_INVALID"
	PackageMainNotFound  Code = "PACKAGE_MAIN_NOT_FOUND"
	ExportsTargetMissing Code = "EXPORTS_TARGET_NOT_FOUND"
	ExportsNotFound      Code = "EXPORTS_NOT_FOUND"
	ImportsNotFound      Code = "IMPORTS_NOT_FOUND"

	// Package
	PkgSpecInvalid     Code = "PKG_SPEC_INVALID"
	PkgNotFound        Code = "PKG_NOT_FOUND"
	PkgVersionNotFound Code = "PKG_VERSION_NOT_FOUND"
	PkgRegistryError   Code = "PKG_REGISTRY_ERROR"
	PkgDownloadFailed  Code = "PKG_DOWNLOAD_FAILED"
	PkgExtractFailed   Code = "PKG_EXTRACT_FAILED"
	PkgLinkFailed      Code = "PKG_LINK_FAILED"
	PkgCacheIOError    Code = "PKG_CACHE_IO_ERROR"

	// Lockfile
	PkgLockNotFound          Code = "PKG_LOCK_NOT_FOUND"
	PkgLockInvalidJSON       Code = "PKG_LOCK_INVALID_JSON"
	PkgLockVersionMismatch   Code = "PKG_LOCK_VERSION_MISMATCH"
	PkgLockIntegrityMismatch Code = "PKG_LOCK_INTEGRITY_MISMATCH"
	PkgLockPackageMissing    Code = "PKG_LOCK_PACKAGE_MISSING"
	PkgLockWriteFailed       Code = "PKG_LOCK_WRITE_FAILED"
	PkgLockStale             Code = "PKG_LOCK_STALE"

	// Build
	BuildScriptNotFound     Code = "BUILD_SCRIPT_NOT_FOUND"
	BuildScriptFailed       Code = "BUILD_SCRIPT_FAILED"
	BuildHashIOError        Code = "BUILD_HASH_IO_ERROR"
	BuildTargetInvalid      Code = "BUILD_TARGET_INVALID"
	BuildPackageJSONInvalid Code = "BUILD_PACKAGE_JSON_INVALID"

	// Watch
	WatchAlreadyRunning Code = "WATCH_ALREADY_RUNNING"
	WatchNotRunning     Code = "WATCH_NOT_RUNNING"
	WatchInvalidRoot    Code = "WATCH_INVALID_ROOT"
)

// Error is the value carried by the wire-level Error response variant
// and returned by internal APIs that need to surface a stable code
// across the IPC boundary.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an Error with no path.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithPath constructs an Error carrying a path.
func WithPath(code Code, message, path string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// Wrap turns any error into an Error carrying code, preserving err's
// message. If err is already *Error, it is returned unchanged so an
// inner component's specific code isn't clobbered by an outer one
// (spec §7: "Internal errors are wrapped ... at the component
// boundary", implying the innermost boundary wins).
func Wrap(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: code, Message: err.Error()}
}
