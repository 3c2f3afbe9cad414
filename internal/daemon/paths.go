// Package daemon implements the long-running howth process: it owns the
// three daemon caches (spec §4.9), the file watcher (§4.10), and the IPC
// listener (§4.11), and dispatches every request kind to the component
// that implements it. Grounded on the teacher's internal/daemon package
// (repo-hash-derived socket/pid/log paths, pidfile locking via
// nightlyone/lockfile, an idle-timeout loop driven by a request-signal
// channel) with the RPC layer itself replaced per spec §4.11's explicit
// mandate (see DESIGN.md).
package daemon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/howth-dev/howth/internal/config"
)

// Channel derives the per-project channel identifier spec §6 describes
// ("a channel-specific path"), grounded on the teacher's getRepoHash:
// truncated sha256 of the repo root, since Unix domain socket paths have
// a ~108 character limit and a full path would not fit once combined
// with a temp directory prefix.
func Channel(repoRoot string) string {
	sum := sha256.Sum256([]byte(repoRoot))
	return hex.EncodeToString(sum[:])[:16]
}

func pidFilePath(stateDir string) string {
	return filepath.Join(stateDir, "howth.pid")
}

func logFilePath(stateDir string) string {
	return filepath.Join(stateDir, "howth.log")
}

// ResolveStatePaths returns the (state dir, socket, pidfile, logfile)
// quadruple for channel. The xdg lookup in config.UserStateDir may create
// the state directory; the socket, pid, and log files are not created
// here. Exported so
// both the daemon process entrypoint (lifecycle.go) and the client-side
// cmdutil package can agree on where the daemon's files live.
func ResolveStatePaths(cfg *config.Config, channel string) (stateDir, sock, pid, log string, err error) {
	stateDir, err = config.UserStateDir(channel)
	if err != nil {
		return "", "", "", "", fmt.Errorf("daemon: resolving state dir: %w", err)
	}
	return stateDir, cfg.IPCEndpoint, pidFilePath(stateDir), logFilePath(stateDir), nil
}
