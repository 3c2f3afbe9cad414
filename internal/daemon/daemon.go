package daemon

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"

	"github.com/howth-dev/howth/internal/config"
	"github.com/howth-dev/howth/internal/daemoncache"
	"github.com/howth-dev/howth/internal/filewatcher"
	"github.com/howth-dev/howth/internal/ipc"
	"github.com/howth-dev/howth/internal/ipcerr"
	"github.com/howth-dev/howth/internal/registry"
)

// Daemon owns every piece of long-lived state spec §4.9/§4.10 describe:
// the three caches, the file watcher, and the npm registry client, plus
// the bookkeeping (start time, idle-timeout signaling) the teacher's own
// daemon struct carries.
type Daemon struct {
	logger   hclog.Logger
	repoRoot string
	version  string
	cfg      *config.Config

	sockPath string
	pidPath  string
	logPath  string

	caches   *daemoncache.Caches
	registry *registry.Client
	watcher  *filewatcher.Watcher

	watchMu      sync.Mutex
	watchRunning bool
	watchRoots   []string

	startedAt  time.Time
	timeout    time.Duration
	reqCh      chan struct{}
	timedOutCh chan struct{}
}

// New constructs a Daemon ready to Serve. cfg.IPCEndpoint, pidPath, and
// logPath are expected to already be resolved (see paths.go).
func New(logger hclog.Logger, repoRoot, version string, cfg *config.Config, pidPath, logPath string, idleTimeout time.Duration) *Daemon {
	d := &Daemon{
		logger:     logger,
		repoRoot:   repoRoot,
		version:    version,
		cfg:        cfg,
		sockPath:   cfg.IPCEndpoint,
		pidPath:    pidPath,
		logPath:    logPath,
		caches:     daemoncache.New(),
		registry:   registry.NewClient(cfg.NpmRegistry, logger.Named("registry")),
		startedAt:  time.Now(),
		timeout:    idleTimeout,
		reqCh:      make(chan struct{}),
		timedOutCh: make(chan struct{}),
	}
	d.watcher = filewatcher.New(logger.Named("filewatcher"), repoRoot, d)
	return d
}

// InvalidateResolverPath implements filewatcher.Invalidator.
func (d *Daemon) InvalidateResolverPath(path string) { d.caches.Resolver.InvalidatePath(path) }

// InvalidatePackageJSON implements filewatcher.Invalidator.
func (d *Daemon) InvalidatePackageJSON(path string) { d.caches.PackageJSON.Invalidate(path) }

// InvalidateBuildPath implements filewatcher.Invalidator.
func (d *Daemon) InvalidateBuildPath(path string) { d.caches.Build.InvalidatePath(path) }

var errInactivityTimeout = errors.New("howth daemon shut down from inactivity")

// tryAcquirePidfileLock ensures only one daemon runs per channel at a
// time (spec §9 "Process-wide state"), grounded on the teacher's
// tryAcquirePidfileLock.
func tryAcquirePidfileLock(pidPath string) (lockfile.Lockfile, error) {
	lockFile, err := lockfile.New(pidPath)
	if err != nil {
		panic(err)
	}
	// lockfile.TryLock succeeds again for the pid that already owns the
	// lock, so a second daemon inside this process is rejected here.
	if owner, err := lockFile.GetOwner(); err == nil && owner.Pid == os.Getpid() {
		return "", lockfile.ErrBusy
	}
	if err := lockFile.TryLock(); err != nil {
		return "", err
	}
	return lockFile, nil
}

// Serve runs the daemon's accept loop until done is closed, the idle
// timeout fires, or the listener stops accepting. Grounded on the
// teacher's runTurboServer: pidfile lock, socket bind, idle-timeout
// goroutine. On any of the three exit triggers it closes the listener and
// returns; connections already being served are not waited for.
func (d *Daemon) Serve(done <-chan struct{}) error {
	lock, err := tryAcquirePidfileLock(d.pidPath)
	if err != nil {
		return errors.Wrapf(err, "failed to lock the pid file at %v. Is another howth daemon running?", d.pidPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Error(errors.Wrapf(err, "failed unlocking pid file at %v", d.pidPath).Error())
		}
	}()

	lis, err := ipc.Listen(d.sockPath)
	if err != nil {
		return err
	}
	defer lis.Close()

	go d.timeoutLoop()

	connDone := make(chan struct{})
	go d.acceptLoop(lis, connDone)

	var exitErr error
	select {
	case <-d.timedOutCh:
		exitErr = errInactivityTimeout
	case <-done:
	case <-connDone:
	}
	_ = lis.Close()
	return exitErr
}

func (d *Daemon) acceptLoop(lis net.Listener, done chan<- struct{}) {
	defer close(done)
	for {
		nc, err := lis.Accept()
		if err != nil {
			return
		}
		go d.serveConn(nc)
	}
}

func (d *Daemon) serveConn(nc net.Conn) {
	defer nc.Close()
	conn, _, err := ipc.AcceptAndHandshake(nc, d.version)
	if err != nil {
		if _, mismatch := err.(ipc.ErrProtoVersionMismatch); mismatch {
			d.logger.Debug("client proto version mismatch", "error", err)
		}
		return
	}
	defer conn.Close()

	for {
		env, err := conn.Recv()
		if err != nil {
			switch err.(type) {
			case ipc.ErrFrameTooLarge, ipc.ErrEmptyFrame:
				d.sendErr(conn, ipcerr.New(ipcerr.InvalidRequest, err.Error()))
			}
			return
		}
		select {
		case d.reqCh <- struct{}{}:
		default:
		}

		if d.dispatch(conn, env) {
			return
		}
	}
}

func (d *Daemon) timeoutLoop() {
	if d.timeout <= 0 {
		return
	}
	timeoutCh := time.After(d.timeout)
	for {
		select {
		case <-d.reqCh:
			timeoutCh = time.After(d.timeout)
		case <-timeoutCh:
			close(d.timedOutCh)
			return
		}
	}
}

func (d *Daemon) logError(err error) {
	d.logger.Error("error", "err", err)
}

var _logFileFlags = os.O_WRONLY | os.O_APPEND | os.O_CREATE
