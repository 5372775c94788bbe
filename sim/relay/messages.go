// Package relay carries the robot bridge over a websocket so a robot
// program can run in another process.
//
// The robot opens a socket and sends "subscribe" naming its robot. The
// server answers "welcome" and then pushes one "tick" message per tick,
// sending the next only after the client has acked the previous one. Every
// other verb is a request with a sequence number answered by a "reply"
// carrying the same number. A reply to a mode write names the write
// generation the robot must see in a tick before the new mode is readable.
package relay

import (
	"errors"
	"fmt"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/ipc"
)

// ProtocolVersion is sent in welcome messages.
const ProtocolVersion = 1

// Message types sent by robots.
const (
	TypeSubscribe     = "subscribe"
	TypeAck           = "ack"
	TypeWrite         = "write"
	TypeServerStart   = "server_start"
	TypeServerAccept  = "server_accept"
	TypeServerClose   = "server_close"
	TypeClientConnect = "client_connect"
	TypeClientClose   = "client_close"
	TypeSend          = "send"
	TypeRecv          = "recv"
	TypeLog           = "log"
)

// Message types sent by the simulator.
const (
	TypeWelcome = "welcome"
	TypeTick    = "tick"
	TypeReply   = "reply"
)

// Error kinds carried in replies.
const (
	KindCommunications = "communications"
	KindSnapshot       = "snapshot"
	KindClosed         = "closed"
	KindError          = "error"
)

// Request is a message from a robot.
type Request struct {
	Type    string `json:"type" jsonschema:"enum=subscribe,enum=ack,enum=write,enum=server_start,enum=server_accept,enum=server_close,enum=client_connect,enum=client_close,enum=send,enum=recv,enum=log"`
	Seq     uint64 `json:"seq,omitempty"`
	Robot   string `json:"robot,omitempty"`
	Tick    int64  `json:"tick,omitempty"`
	Path    string `json:"path,omitempty"`
	Value   string `json:"value,omitempty"`
	Server  string `json:"server,omitempty"`
	Conn    string `json:"conn,omitempty"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
	Data    []byte `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Reply is a message from the simulator.
type Reply struct {
	Type    string          `json:"type" jsonschema:"enum=welcome,enum=tick,enum=reply"`
	Ver     int             `json:"ver,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Robot   string          `json:"robot,omitempty"`
	Address string          `json:"address,omitempty"`
	ID      string          `json:"id,omitempty"`
	Data    []byte          `json:"data,omitempty"`
	Gen     uint64          `json:"generation,omitempty"`
	Update  *sim.TickUpdate `json:"update,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
}

func errorKind(err error) string {
	var comm *sim.CommunicationsError
	switch {
	case errors.As(err, &comm):
		return KindCommunications
	case errors.Is(err, sim.ErrSnapshotFailed):
		return KindSnapshot
	case errors.Is(err, ipc.ErrMailboxClosed):
		return KindClosed
	}
	return KindError
}

// replyError rebuilds a typed error from a reply.
func replyError(robotID, op string, r Reply) error {
	if r.Error == "" {
		return nil
	}
	msg := errors.New(r.Error)
	switch r.Kind {
	case KindCommunications:
		return &sim.CommunicationsError{Robot: robotID, Op: op, Err: msg}
	case KindSnapshot:
		return fmt.Errorf("%w: %s", sim.ErrSnapshotFailed, r.Error)
	case KindClosed:
		return fmt.Errorf("%w: %s", ipc.ErrMailboxClosed, r.Error)
	}
	return msg
}
