package daemon

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/howth-dev/howth/internal/config"
	"github.com/howth-dev/howth/internal/signals"
	"github.com/howth-dev/howth/internal/util"
)

const defaultIdleTimeout = 4 * time.Hour

// RunOpts configures a daemon process invocation (spec §6 "howth daemon"
// CLI surface: --idle-time).
type RunOpts struct {
	RepoRoot    string
	Version     string
	IdleTimeout string
}

// Run is the daemon process entrypoint: open the log file, build the
// logger, load config, construct the Daemon, and Serve until signaled.
// Grounded on the teacher's ExecuteDaemon, generalized from its
// grpc-server construction to internal/daemon.New/Serve.
func Run(opts RunOpts, signalWatcher *signals.Watcher) error {
	timeout := defaultIdleTimeout
	if opts.IdleTimeout != "" {
		parsed, err := time.ParseDuration(opts.IdleTimeout)
		if err != nil {
			return fmt.Errorf("daemon: invalid --idle-time %q: %w", opts.IdleTimeout, err)
		}
		timeout = parsed
	}

	channel := Channel(opts.RepoRoot)
	cfg, err := config.Load(opts.RepoRoot, channel)
	if err != nil {
		return err
	}

	stateDir, _, pidPath, logPath, err := ResolveStatePaths(cfg, channel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("daemon: creating state dir: %w", err)
	}

	logFile, err := os.OpenFile(logPath, _logFileFlags, 0o644)
	if err != nil {
		return fmt.Errorf("daemon: opening log file: %w", err)
	}
	defer util.CloseAndIgnoreError(logFile)

	logger := hclog.New(&hclog.LoggerOptions{
		Output: io.MultiWriter(logFile, os.Stdout),
		Level:  hclog.Info,
		Color:  hclog.ColorOff,
		Name:   "howthd",
	})

	d := New(logger, opts.RepoRoot, opts.Version, cfg, pidPath, logPath, timeout)

	done := make(chan struct{})
	signalWatcher.AddOnClose(func() { close(done) })

	if err := d.Serve(done); err != nil {
		d.logError(err)
		return err
	}
	return nil
}
