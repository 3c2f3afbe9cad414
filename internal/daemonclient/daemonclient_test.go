package daemonclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/daemon/connector"
	"github.com/howth-dev/howth/internal/ipc"
	"github.com/howth-dev/howth/internal/ipcerr"
)

// newTestClient wires a DaemonClient directly to one end of an in-memory
// pipe, with the other end handed to the caller to play server. This
// skips the handshake (AcceptAndHandshake/ClientHandshake are exercised
// separately in internal/ipc) since roundTrip only cares about frames.
func newTestClient(t *testing.T) (*DaemonClient, *ipc.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close(); serverSide.Close() })

	client := &connector.Client{
		Conn:     ipc.NewConn(clientSide),
		SockPath: "/tmp/test.sock",
		PidPath:  "/tmp/test.pid",
		LogPath:  "/tmp/test.log",
	}
	return New(client), ipc.NewConn(serverSide)
}

func TestDaemonClientPing(t *testing.T) {
	d, server := newTestClient(t)
	go func() {
		env, err := server.Recv()
		if err != nil {
			return
		}
		var req ipc.PingRequest
		_ = env.Decode(&req)
		_ = server.Send(ipc.KindPing, ipc.PongResponse{Nonce: req.Nonce})
	}()

	nonce, err := d.Ping("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", nonce)
}

func TestDaemonClientRoundTripSurfacesRemoteError(t *testing.T) {
	d, server := newTestClient(t)
	go func() {
		if _, err := server.Recv(); err != nil {
			return
		}
		_ = server.SendEnvelope(ipc.EncodeError(ipcerr.New(ipcerr.InvalidRequest, "bad nonce")))
	}()

	_, err := d.Ping("abc123")
	require.Error(t, err)
	var ipcErr *ipcerr.Error
	require.ErrorAs(t, err, &ipcErr)
	assert.Equal(t, ipcerr.InvalidRequest, ipcErr.Code)
}

func TestDaemonClientStatusUsesConnectorPaths(t *testing.T) {
	d, _ := newTestClient(t)
	status := d.Status()
	assert.Equal(t, "/tmp/test.sock", status.SockFile)
	assert.Equal(t, "/tmp/test.pid", status.PidFile)
	assert.Equal(t, "/tmp/test.log", status.LogFile)
}

func TestDaemonClientWatchBuildStream(t *testing.T) {
	d, server := newTestClient(t)
	go func() {
		env, err := server.Recv()
		if err != nil {
			return
		}
		var req ipc.WatchBuildRequest
		_ = env.Decode(&req)
		_ = server.Send(ipc.KindWatchBuild, ipc.WatchBuildEvent{OK: true, TriggeredAt: "t0"})
		_ = server.Send(ipc.KindWatchBuild, ipc.WatchBuildEvent{OK: false, TriggeredAt: "t1"})
	}()

	first, err := d.WatchBuild(ipc.WatchBuildRequest{Targets: []string{"build"}})
	require.NoError(t, err)
	assert.True(t, first.OK)

	second, err := d.Next()
	require.NoError(t, err)
	assert.False(t, second.OK)
}
