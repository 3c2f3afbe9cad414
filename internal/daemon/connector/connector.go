// Package connector implements the client side of daemon discovery and
// startup: dial the existing daemon if one is live, spawn and retry if
// not, kill and restart on a stale pid or version mismatch. Grounded on
// the teacher's own internal/daemon/connector, with every grpc call
// (client.Shutdown, client.Hello, grpc.Dial) replaced by the equivalent
// internal/ipc request/response round trip per spec §4.11 — the
// retry/kill/spawn state machine itself (the valuable, non-transport
// part of this file) is unchanged in shape.
package connector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"

	"github.com/howth-dev/howth/internal/ipc"
)

var (
	// ErrDaemonNotRunning is returned when DontStart is set and no daemon
	// is reachable.
	ErrDaemonNotRunning = errors.New("daemon is not running")
	// ErrFailedToStart is returned when the daemon process cannot be started.
	ErrFailedToStart = errors.New("daemon could not be started")
	// ErrVersionMismatch is returned when the connected daemon reports a
	// different protocol version than this client.
	ErrVersionMismatch   = errors.New("daemon version does not match client version")
	errConnectionFailure = errors.New("could not connect to daemon")
	// ErrTooManyAttempts is returned when the client fails to connect too many times.
	ErrTooManyAttempts = errors.New("reached maximum number of attempts contacting daemon")
)

// Opts is the set of configurable options for the client connection,
// including options passed through to the daemon process if it needs to
// be started.
type Opts struct {
	ServerTimeout time.Duration
	// DontStart prevents spawning a daemon process if none is reachable.
	DontStart bool
	// DontKill prevents killing a live daemon on version mismatch.
	DontKill bool
}

// Client wraps a handshake-completed ipc.Conn plus the on-disk paths the
// caller may want to report (status, error messages).
type Client struct {
	*ipc.Conn
	SockPath string
	PidPath  string
	LogPath  string
}

// Connector creates and re-establishes connections to the daemon
// process, starting or restarting it as needed.
type Connector struct {
	Logger        hclog.Logger
	Bin           string
	Opts          Opts
	SockPath      string
	PidPath       string
	LogPath       string
	ClientVersion string
}

func (c *Connector) wrapConnectionError(err error) error {
	return errors.Wrapf(err, `connection to howth daemon process failed. Please ensure the following:
 - the unix domain socket at %v has been removed
 - the process identified by the pid at %v is not running, and remove %v`, c.SockPath, c.PidPath, c.PidPath)
}

const maxAttempts = 3

var (
	shutdownDeadline     = 1 * time.Second
	shutdownPollInterval = 50 * time.Millisecond
)

// Connect attempts to create a connection to a howth daemon. Retries and
// daemon restarts are built in.
func (c *Connector) Connect(ctx context.Context) (*Client, error) {
	client, err := c.connectInternal(ctx)
	if err != nil {
		return nil, c.wrapConnectionError(err)
	}
	return client, nil
}

func (c *Connector) connectInternal(ctx context.Context) (*Client, error) {
	if _, err := os.Stat(c.SockPath); err != nil {
		if c.Opts.DontStart {
			return nil, ErrDaemonNotRunning
		}
		if err := c.startDaemon(); err != nil {
			return nil, err
		}
	}

	attempts := 0
	var client *Client
	var err error
	for client == nil && attempts < maxAttempts {
		client, err = c.dial()
		if err == nil {
			return client, nil
		}
		if errors.Is(err, errConnectionFailure) {
			if killErr := c.killDeadServer(); killErr != nil {
				return nil, killErr
			}
			attempts++
			continue
		}
		var mismatch ipc.ErrProtoVersionMismatch
		if asErrProtoVersionMismatch(err, &mismatch) {
			if c.Opts.DontKill {
				return nil, ErrVersionMismatch
			}
			if killErr := c.killLiveServer(ctx); killErr != nil {
				return nil, killErr
			}
			attempts++
			continue
		}
		return nil, err
	}
	if client == nil {
		return nil, ErrTooManyAttempts
	}
	return client, nil
}

func asErrProtoVersionMismatch(err error, out *ipc.ErrProtoVersionMismatch) bool {
	if m, ok := err.(ipc.ErrProtoVersionMismatch); ok {
		*out = m
		return true
	}
	return false
}

func (c *Connector) dial() (*Client, error) {
	conn, err := ipc.Dial(c.SockPath)
	if err != nil {
		return nil, errConnectionFailure
	}
	if _, err := ipc.ClientHandshake(conn, c.ClientVersion); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{Conn: ipc.NewConn(conn), SockPath: c.SockPath, PidPath: c.PidPath, LogPath: c.LogPath}, nil
}

// killLiveServer asks a reachable daemon to shut down gracefully, then
// force-kills it if it doesn't exit within shutdownDeadline.
func (c *Connector) killLiveServer(ctx context.Context) error {
	client, err := c.dial()
	if err != nil {
		return c.killDeadServer()
	}
	defer client.Close()

	if err := client.Send(ipc.KindShutdown, ipc.ShutdownRequest{}); err != nil {
		c.Logger.Error(fmt.Sprintf("failed to request shutdown: %v, force killing", err))
		return c.killDeadServer()
	}
	if _, err := client.Recv(); err != nil {
		c.Logger.Error(fmt.Sprintf("no shutdown ack: %v, force killing", err))
		return c.killDeadServer()
	}

	deadline := time.After(shutdownDeadline)
outer:
	for fileExists(c.PidPath) {
		select {
		case <-deadline:
			break outer
		case <-time.After(shutdownPollInterval):
		}
	}
	if fileExists(c.PidPath) {
		c.Logger.Error(fmt.Sprintf("daemon did not exit after %v, force killing", shutdownDeadline))
		return c.killDeadServer()
	}
	return nil
}

func (c *Connector) killDeadServer() error {
	lockFile, err := lockfile.New(c.PidPath)
	if err != nil {
		return err
	}
	process, err := lockFile.GetOwner()
	if err == nil {
		if err := process.Kill(); err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		return removeIfExists(c.SockPath)
	}
	if err == nil || errors.Is(err, lockfile.ErrDeadOwner) {
		if err := removeIfExists(c.SockPath); err != nil {
			return err
		}
		return removeIfExists(c.PidPath)
	}
	return err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Connector) startDaemon() error {
	args := []string{"daemon"}
	if c.Opts.ServerTimeout != 0 {
		args = append(args, fmt.Sprintf("--idle-time=%v", c.Opts.ServerTimeout.String()))
	}
	c.Logger.Debug(fmt.Sprintf("starting howth daemon binary %v", c.Bin))
	cmd := exec.Command(c.Bin, args...)
	cmd.SysProcAttr = getSysProcAttrs()
	if err := cmd.Start(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 3 * time.Second

	waitForSocket := func() error {
		if fileExists(c.SockPath) {
			return nil
		}
		return errSocketNotReady
	}
	if err := backoff.Retry(waitForSocket, bo); err != nil {
		return ErrFailedToStart
	}
	return nil
}

var errSocketNotReady = errors.New("daemon socket not yet created")
