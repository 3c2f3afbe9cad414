package ipc

import (
	"encoding/json"
	"fmt"
	"io"
)

// ProtoSchemaVersion is bumped whenever the handshake, framing, or
// envelope shape changes in a way that breaks older clients or
// servers. It is independent from the per-domain schema versions
// carried by individual response payloads (RunPlan, BuildGraph, etc.),
// which version their own contents instead (spec §4.11 "Versioning").
const ProtoSchemaVersion = 1

// ClientHello is the first frame a client sends after connecting.
type ClientHello struct {
	ProtoSchemaVersion int    `json:"proto_schema_version"`
	ClientVersion      string `json:"client_version"`
}

// ServerHello is the daemon's reply to a ClientHello.
type ServerHello struct {
	ProtoSchemaVersion int    `json:"proto_schema_version"`
	ServerVersion      string `json:"server_version"`
}

// ErrProtoVersionMismatch corresponds to spec §6 PROTO_VERSION_MISMATCH.
type ErrProtoVersionMismatch struct {
	ClientVersion int
	ServerVersion int
}

func (e ErrProtoVersionMismatch) Error() string {
	return fmt.Sprintf("ipc: client proto version %d does not match server version %d",
		e.ClientVersion, e.ServerVersion)
}

// ClientHandshake sends a ClientHello over conn and validates the
// ServerHello reply, per spec §4.11 "Handshake": the connection is
// unusable for anything else until this completes.
func ClientHandshake(conn io.ReadWriter, clientVersion string) (ServerHello, error) {
	hello := ClientHello{ProtoSchemaVersion: ProtoSchemaVersion, ClientVersion: clientVersion}
	payload, err := json.Marshal(hello)
	if err != nil {
		return ServerHello{}, err
	}
	if err := WriteFrame(conn, payload); err != nil {
		return ServerHello{}, err
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		return ServerHello{}, err
	}
	var reply ServerHello
	if err := json.Unmarshal(frame, &reply); err != nil {
		return ServerHello{}, err
	}
	if reply.ProtoSchemaVersion != ProtoSchemaVersion {
		return ServerHello{}, ErrProtoVersionMismatch{
			ClientVersion: ProtoSchemaVersion,
			ServerVersion: reply.ProtoSchemaVersion,
		}
	}
	return reply, nil
}

// ServerHandshake reads a ClientHello from conn and replies with a
// ServerHello. It returns ErrProtoVersionMismatch (after still sending
// the reply, so the client can report the mismatch itself) when the
// client's version differs from ours.
func ServerHandshake(conn io.ReadWriter, serverVersion string) (ClientHello, error) {
	frame, err := ReadFrame(conn)
	if err != nil {
		return ClientHello{}, err
	}
	var hello ClientHello
	if err := json.Unmarshal(frame, &hello); err != nil {
		return ClientHello{}, err
	}

	reply := ServerHello{ProtoSchemaVersion: ProtoSchemaVersion, ServerVersion: serverVersion}
	payload, err := json.Marshal(reply)
	if err != nil {
		return hello, err
	}
	if err := WriteFrame(conn, payload); err != nil {
		return hello, err
	}

	if hello.ProtoSchemaVersion != ProtoSchemaVersion {
		return hello, ErrProtoVersionMismatch{
			ClientVersion: hello.ProtoSchemaVersion,
			ServerVersion: ProtoSchemaVersion,
		}
	}
	return hello, nil
}
