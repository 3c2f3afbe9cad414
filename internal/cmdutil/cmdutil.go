// Package cmdutil holds functionality to run howth via cobra: flag
// parsing and configuration of the components common to every
// subcommand. Grounded on the teacher's own internal/cmdutil, trimmed
// to what this spec's CLI surface needs (no remote-cache API client,
// no interactive UI framework — spec §6's JSON mode suppresses
// interactive output entirely, so plain stdout/stderr writes replace
// the teacher's mitchellh/cli-backed UI, per DESIGN.md).
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/howth-dev/howth/internal/config"
	"github.com/howth-dev/howth/internal/daemon"
	"github.com/howth-dev/howth/internal/daemon/connector"
	"github.com/howth-dev/howth/internal/daemonclient"
	"github.com/howth-dev/howth/internal/fs"
)

const _envLogLevel = "HOWTH_LOG_LEVEL"

// Helper holds configuration values passed via flag/env, common to
// every howth subcommand. It drives construction of a CmdBase, which
// subcommands use directly.
type Helper struct {
	// HowthVersion is the version of howth currently executing.
	HowthVersion string

	verbosity   int
	rawRepoRoot string
	json        bool

	cleanups []io.Closer
}

// NewHelper returns a new helper instance for the root command.
func NewHelper(howthVersion string) *Helper {
	return &Helper{HowthVersion: howthVersion}
}

// AddFlags adds the flags common to every howth command.
func (h *Helper) AddFlags(flags *pflag.FlagSet) {
	flags.CountVarP(&h.verbosity, "verbosity", "v", "verbosity")
	flags.StringVar(&h.rawRepoRoot, "cwd", "", "the directory in which to run howth")
	flags.BoolVar(&h.json, "json", false, "emit a single JSON object on stdout and suppress logs")
}

// RegisterCleanup saves a function to run after howth execution, even
// if the command that ran returned an error.
func (h *Helper) RegisterCleanup(cleanup io.Closer) {
	h.cleanups = append(h.cleanups, cleanup)
}

// Cleanup runs every registered cleanup handler.
func (h *Helper) Cleanup() {
	for _, cleanup := range h.cleanups {
		if err := cleanup.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "howth: cleanup failed: %v\n", err)
		}
	}
}

func (h *Helper) getLogger() (hclog.Logger, error) {
	var level hclog.Level
	switch h.verbosity {
	case 0:
		if v := os.Getenv(_envLogLevel); v != "" {
			level = hclog.LevelFromString(v)
			if level == hclog.NoLevel {
				return nil, fmt.Errorf("%s value %q is not a valid log level", _envLogLevel, v)
			}
		} else {
			level = hclog.NoLevel
		}
	case 1:
		level = hclog.Info
	case 2:
		level = hclog.Debug
	default:
		level = hclog.Trace
	}
	// JSON mode suppresses logs entirely (spec §6 "JSON mode ... logs
	// suppressed or routed to stderr"); otherwise logs go to stderr so
	// stdout stays clean for command output.
	output := ioutil.Discard
	if level != hclog.NoLevel && !h.json {
		output = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "howth",
		Level:  level,
		Color:  hclog.ColorOff,
		Output: output,
	}), nil
}

// CmdBase encompasses the components common to every howth command.
type CmdBase struct {
	Logger       hclog.Logger
	RepoRoot     fs.AbsolutePath
	HowthVersion string
	JSON         bool
}

// GetCmdBase resolves the repo root and logger for this invocation.
func (h *Helper) GetCmdBase() (*CmdBase, error) {
	logger, err := h.getLogger()
	if err != nil {
		return nil, err
	}
	cwd, err := fs.GetCwd()
	if err != nil {
		return nil, err
	}
	repoRoot := fs.ResolveUnknownPath(cwd, h.rawRepoRoot)
	return &CmdBase{
		Logger:       logger,
		RepoRoot:     repoRoot,
		HowthVersion: h.HowthVersion,
		JSON:         h.json,
	}, nil
}

// Connect establishes a daemon connection for base's repo root,
// spawning or restarting the daemon as the connector's state machine
// requires (spec §4.11).
func (b *CmdBase) Connect(dontStart bool) (*daemonclient.DaemonClient, *connector.Client, error) {
	channel := daemon.Channel(b.RepoRoot.String())
	cfg, err := config.Load(b.RepoRoot.String(), channel)
	if err != nil {
		return nil, nil, err
	}
	stateDir, sockPath, pidPath, logPath, err := daemon.ResolveStatePaths(cfg, channel)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("cmdutil: creating state dir: %w", err)
	}

	bin, err := os.Executable()
	if err != nil {
		return nil, nil, err
	}

	c := &connector.Connector{
		Logger:        b.Logger.Named("connector"),
		Bin:           bin,
		SockPath:      sockPath,
		PidPath:       pidPath,
		LogPath:       logPath,
		ClientVersion: b.HowthVersion,
		Opts:          connector.Opts{DontStart: dontStart},
	}
	client, err := c.Connect(context.Background())
	if err != nil {
		return nil, nil, err
	}
	return daemonclient.New(client), client, nil
}
