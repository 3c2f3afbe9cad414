package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/ipc"
)

func TestConnectFailsWithoutServer(t *testing.T) {
	dir := t.TempDir()
	c := &Connector{
		Logger:   hclog.NewNullLogger(),
		Bin:      "nonexistent-binary",
		SockPath: filepath.Join(dir, "test.sock"),
		PidPath:  filepath.Join(dir, "test.pid"),
	}
	_, err := c.connectInternal(context.Background())
	assert.Error(t, err)
}

func TestKillDeadServerNoPidFile(t *testing.T) {
	dir := t.TempDir()
	c := &Connector{
		Logger:   hclog.NewNullLogger(),
		SockPath: filepath.Join(dir, "test.sock"),
		PidPath:  filepath.Join(dir, "test.pid"),
	}
	assert.NoError(t, c.killDeadServer())
}

func TestKillDeadServerStaleSocketNoProcess(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")
	pidPath := filepath.Join(dir, "test.pid")

	require.NoError(t, os.WriteFile(sockPath, []byte("junk"), 0o644))
	// A pid that is overwhelmingly unlikely to correspond to a live
	// process, simulating a daemon that crashed without cleaning up.
	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0o644))

	c := &Connector{
		Logger:   hclog.NewNullLogger(),
		SockPath: sockPath,
		PidPath:  pidPath,
	}
	require.NoError(t, c.killDeadServer())
	_, sockErr := os.Stat(sockPath)
	assert.True(t, os.IsNotExist(sockErr))
	_, pidErr := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(pidErr))
}

func TestConnectSucceedsAgainstLiveServer(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	lis, err := ipc.Listen(sockPath)
	require.NoError(t, err)
	defer lis.Close()

	go func() {
		nc, err := lis.Accept()
		if err != nil {
			return
		}
		conn, _, err := ipc.AcceptAndHandshake(nc, "1.0.0")
		if err != nil {
			return
		}
		defer conn.Close()
		env, err := conn.Recv()
		if err != nil {
			return
		}
		if env.Kind == ipc.KindShutdown {
			_ = conn.Send(ipc.KindShutdown, ipc.ShutdownResponse{Accepted: true})
		}
	}()

	c := &Connector{
		Logger:        hclog.NewNullLogger(),
		SockPath:      sockPath,
		PidPath:       filepath.Join(dir, "test.pid"),
		ClientVersion: "1.0.0",
		Opts:          Opts{DontStart: true},
	}
	client, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(ipc.KindShutdown, ipc.ShutdownRequest{}))
	resp, err := client.Recv()
	require.NoError(t, err)
	var shutdownResp ipc.ShutdownResponse
	require.NoError(t, resp.Decode(&shutdownResp))
	assert.True(t, shutdownResp.Accepted)
}
