package programs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ev3sim/ev3sim/ev3"
	"github.com/ev3sim/ev3sim/sim"
)

const defaultCommPort = 5000

// Ping connects to a pong robot, sends count numbered messages and logs
// each reply. It retries the connection until connect_seconds of simulated
// time have passed, since the peer may not be listening yet.
// Args: peer (address, required), port, count, connect_seconds.
func Ping(ctx context.Context, b *ev3.Brick, args Args) error {
	peer := args.String("peer", "")
	if peer == "" {
		return errors.New("ping: peer address required")
	}
	port, err := args.Int("port", defaultCommPort)
	if err != nil {
		return err
	}
	count, err := args.Int("count", 5)
	if err != nil {
		return err
	}
	wait, err := args.Float("connect_seconds", 5)
	if err != nil {
		return err
	}

	conn, err := dialRetry(ctx, b, peer, port, wait)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	for i := 1; i <= count; i++ {
		if err := conn.Send(ctx, fmt.Appendf(nil, "ping %d", i)); err != nil {
			return err
		}
		reply, err := conn.Recv(ctx)
		if err != nil {
			return err
		}
		if err := b.Logf(ctx, "received %q", reply); err != nil {
			return err
		}
	}
	return nil
}

func dialRetry(ctx context.Context, b *ev3.Brick, address string, port int, seconds float64) (*ev3.Conn, error) {
	deadline := b.Time() + seconds
	for {
		conn, err := b.Dial(ctx, address, port)
		if err == nil {
			return conn, nil
		}
		var comm *sim.CommunicationsError
		if !errors.As(err, &comm) || b.Time() >= deadline {
			return nil, err
		}
		if err := b.WaitForTick(ctx); err != nil {
			return nil, err
		}
	}
}

// Pong listens on port and answers every message of one client with
// "pong" plus the message suffix until the client hangs up.
// Args: port.
func Pong(ctx context.Context, b *ev3.Brick, args Args) error {
	port, err := args.Int("port", defaultCommPort)
	if err != nil {
		return err
	}
	srv, err := b.Listen(ctx, port)
	if err != nil {
		return err
	}
	defer srv.Close(context.WithoutCancel(ctx))

	conn, err := srv.Accept(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			var comm *sim.CommunicationsError
			if errors.As(err, &comm) {
				return b.Logf(ctx, "peer hung up")
			}
			return err
		}
		if err := conn.Send(ctx, PongReply(msg)); err != nil {
			return err
		}
	}
}

// PongReply answers "ping <n>" with "pong <n>".
func PongReply(msg []byte) []byte {
	if len(msg) >= 4 && string(msg[:4]) == "ping" {
		return append([]byte("pong"), msg[4:]...)
	}
	return append([]byte("pong "), msg...)
}
