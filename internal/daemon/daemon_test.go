package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/config"
	"github.com/howth-dev/howth/internal/ipc"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "howth.sock")
	return &config.Config{
		IPCEndpoint: sockPath,
		NpmRegistry: "https://registry.npmjs.org",
		MaxParallel: 4,
	}, dir
}

func newTestDaemon(t *testing.T, idleTimeout time.Duration) (*Daemon, string) {
	t.Helper()
	cfg, dir := testConfig(t)
	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "package.json"), []byte(`{"name":"fixture","version":"1.0.0"}`), 0o644))
	pidPath := filepath.Join(dir, "howth.pid")
	logPath := filepath.Join(dir, "howth.log")
	d := New(hclog.NewNullLogger(), repoRoot, "test", cfg, pidPath, logPath, idleTimeout)
	return d, cfg.IPCEndpoint
}

func waitForSocket(t *testing.T, sockPath string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(sockPath); err == nil {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for socket at %v", sockPath)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDaemonPingRoundTrip(t *testing.T) {
	d, sockPath := newTestDaemon(t, 0)
	done := make(chan struct{})
	serveErr := make(chan error, 1)
	go func() { serveErr <- d.Serve(done) }()
	t.Cleanup(func() { close(done) })

	waitForSocket(t, sockPath)

	conn, _, err := ipc.DialAndHandshake(sockPath, "test")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(ipc.KindPing, ipc.PingRequest{Nonce: "abc"}))
	env, err := conn.Recv()
	require.NoError(t, err)
	assert.Equal(t, ipc.KindPing, env.Kind)

	var resp ipc.PongResponse
	require.NoError(t, env.Decode(&resp))
	assert.Equal(t, "abc", resp.Nonce)
}

func TestDaemonShutdownClosesConnection(t *testing.T) {
	d, sockPath := newTestDaemon(t, 0)
	done := make(chan struct{})
	serveErr := make(chan error, 1)
	go func() { serveErr <- d.Serve(done) }()

	waitForSocket(t, sockPath)

	conn, _, err := ipc.DialAndHandshake(sockPath, "test")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(ipc.KindShutdown, ipc.ShutdownRequest{}))
	env, err := conn.Recv()
	require.NoError(t, err)
	var resp ipc.ShutdownResponse
	require.NoError(t, env.Decode(&resp))
	assert.True(t, resp.Accepted)

	// The server closes its half of the connection after a shutdown
	// request; a further Recv should fail rather than hang.
	_, err = conn.Recv()
	assert.Error(t, err)

	close(done)
}

func TestDaemonIdleTimeout(t *testing.T) {
	d, sockPath := newTestDaemon(t, 20*time.Millisecond)
	done := make(chan struct{})
	defer close(done)
	serveErr := make(chan error, 1)
	go func() { serveErr <- d.Serve(done) }()

	waitForSocket(t, sockPath)

	select {
	case err := <-serveErr:
		assert.ErrorIs(t, err, errInactivityTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle shutdown")
	}
}

func TestDaemonPidfileLockPreventsSecondInstance(t *testing.T) {
	d1, sockPath := newTestDaemon(t, 0)
	done1 := make(chan struct{})
	go func() { _ = d1.Serve(done1) }()
	t.Cleanup(func() { close(done1) })
	waitForSocket(t, sockPath)

	cfg2, _ := testConfig(t)
	cfg2.IPCEndpoint = sockPath + "-second"
	d2 := New(hclog.NewNullLogger(), t.TempDir(), "test", cfg2, d1.pidPath, d1.logPath, 0)
	done2 := make(chan struct{})
	defer close(done2)
	err := d2.Serve(done2)
	assert.Error(t, err)
}
