package ipc

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`)))
	require.NoError(t, WriteFrame(&buf, []byte(`{"b":2}`)))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(second))
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	huge := make([]byte, MaxFrameSize+1)
	err := WriteFrame(&buf, huge)
	var tooLarge ErrFrameTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}

func TestReadFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	_, err := ReadFrame(&buf)
	assert.Equal(t, ErrEmptyFrame{}, err)
}

func TestHandshakeSucceedsOnMatchingVersion(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, "1.0.0-server")
		done <- err
	}()

	reply, err := ClientHandshake(clientConn, "1.0.0-client")
	require.NoError(t, err)
	assert.Equal(t, ProtoSchemaVersion, reply.ProtoSchemaVersion)
	require.NoError(t, <-done)
}

func TestEnvelopeEncodeDecode(t *testing.T) {
	env, err := Encode(KindPing, PingRequest{Nonce: "abc"})
	require.NoError(t, err)
	assert.Equal(t, KindPing, env.Kind)

	var decoded PingRequest
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, "abc", decoded.Nonce)
}

func TestUnixSocketRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "howth-test.sock")
	lis, err := Listen(sockPath)
	require.NoError(t, err)
	defer lis.Close()

	serverDone := make(chan error, 1)
	go func() {
		nc, err := lis.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		conn, _, err := AcceptAndHandshake(nc, "1.0.0")
		if err != nil {
			serverDone <- err
			return
		}
		defer conn.Close()

		env, err := conn.Recv()
		if err != nil {
			serverDone <- err
			return
		}
		var req PingRequest
		if err := env.Decode(&req); err != nil {
			serverDone <- err
			return
		}
		serverDone <- conn.Send(KindPing, PongResponse{Nonce: req.Nonce})
	}()

	conn, hello, err := DialAndHandshake(sockPath, "1.0.0")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, ProtoSchemaVersion, hello.ProtoSchemaVersion)

	require.NoError(t, conn.Send(KindPing, PingRequest{Nonce: "xyz"}))
	env, err := conn.Recv()
	require.NoError(t, err)

	var pong PongResponse
	require.NoError(t, env.Decode(&pong))
	assert.Equal(t, "xyz", pong.Nonce)

	require.NoError(t, <-serverDone)
}
