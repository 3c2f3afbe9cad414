// Package ipc implements spec §4.11: the daemon's wire protocol. Each
// message is a 4-byte little-endian length prefix followed by a JSON
// payload, replacing the teacher's gRPC/protobuf transport
// (internal/server, internal/daemon/connector) with a protocol the spec
// mandates directly rather than a generated RPC stack. Grounded on
// internal/daemon/daemon.go's net.Listen("unix", sockPath.ToString())
// for the transport itself — the teacher never wires a Windows named
// pipe despite running cross-platform, so this package follows suit and
// targets the Unix domain socket path described in spec §6.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the largest payload ipc will read or write, per spec
// §4.11 "Framing". A client or server that needs to send more is
// malformed; oversize frames are rejected with INVALID_REQUEST rather
// than silently truncated.
const MaxFrameSize uint32 = 16 << 20 // 16 MiB

// ErrFrameTooLarge corresponds to spec §6 INVALID_REQUEST for an
// oversize frame.
type ErrFrameTooLarge struct {
	Size uint32
}

func (e ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("ipc: frame size %d exceeds max %d", e.Size, MaxFrameSize)
}

// ErrEmptyFrame corresponds to INVALID_REQUEST for a zero-length frame.
type ErrEmptyFrame struct{}

func (ErrEmptyFrame) Error() string { return "ipc: empty frame" }

// WriteFrame writes a 4-byte little-endian length prefix followed by
// payload. Callers hold the connection's write lock if concurrent
// writers are possible — ipc itself does not serialize writes.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint32(len(payload)) > MaxFrameSize {
		return ErrFrameTooLarge{Size: uint32(len(payload))}
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame. It returns ErrFrameTooLarge
// without consuming the declared payload if the prefix exceeds
// MaxFrameSize, and ErrEmptyFrame for a declared length of zero — the
// protocol has no legal zero-length message (spec §4.11).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyFrame{}
	}
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge{Size: size}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
