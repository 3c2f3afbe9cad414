package ipc

import (
	"encoding/json"
	"io"
	"net"
	"sync"
)

// Conn wraps a net.Conn with frame-level Send/Recv of Envelopes. Writes
// are serialized with a mutex since a single connection may be shared
// by a request goroutine and an async watch-build pusher (spec §5
// "Within a single connection, responses are emitted in the order the
// corresponding requests were received"); reads are not serialized —
// callers are expected to read sequentially from one goroutine per
// connection, matching the teacher's one-task-per-connection model in
// internal/server.
type Conn struct {
	nc net.Conn
	mu sync.Mutex
}

// NewConn wraps an already-connected net.Conn. It does not perform the
// handshake; call ClientHandshake or ServerHandshake on the result of
// Raw() first, or use DialAndHandshake / AcceptAndHandshake below.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Raw exposes the underlying connection for handshake use.
func (c *Conn) Raw() net.Conn { return c.nc }

// Send encodes and writes one envelope.
func (c *Conn) Send(kind Kind, payload interface{}) error {
	env, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteFrame(c.nc, data)
}

// SendEnvelope writes an already-built envelope.
func (c *Conn) SendEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteFrame(c.nc, data)
}

// Recv reads and decodes the next envelope.
func (c *Conn) Recv() (Envelope, error) {
	frame, err := ReadFrame(c.nc)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// DialAndHandshake dials endpoint, performs the client handshake, and
// returns a ready-to-use Conn.
func DialAndHandshake(endpoint, clientVersion string) (*Conn, ServerHello, error) {
	nc, err := Dial(endpoint)
	if err != nil {
		return nil, ServerHello{}, err
	}
	hello, err := ClientHandshake(nc, clientVersion)
	if err != nil {
		nc.Close()
		return nil, ServerHello{}, err
	}
	return NewConn(nc), hello, nil
}

// AcceptAndHandshake performs the server side of the handshake over an
// already-accepted net.Conn.
func AcceptAndHandshake(nc net.Conn, serverVersion string) (*Conn, ClientHello, error) {
	hello, err := ServerHandshake(nc, serverVersion)
	if err != nil {
		nc.Close()
		return nil, hello, err
	}
	return NewConn(nc), hello, nil
}

var _ io.Closer = (*Conn)(nil)
