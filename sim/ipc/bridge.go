package ipc

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
)

// LogSink receives robot log lines, e.g. for the run recorder.
type LogSink func(robotID string, tick int64, msg string)

// LocalBridge is the in-process robot bridge: it reads the robot's mailbox,
// pushes writes onto the shared queue and forwards comm verbs to the relay.
// Tick waits come from one goroutine; the other verbs may run concurrently.
type LocalBridge struct {
	robotID  string
	address  string
	box      *Mailbox
	writes   *sim.WriteQueue
	relay    *Relay
	sink     LogSink
	lastTick atomic.Int64
}

// NewLocalBridge creates a bridge for a registered robot.
func NewLocalBridge(robotID, address string, box *Mailbox, writes *sim.WriteQueue, relay *Relay, sink LogSink) *LocalBridge {
	b := &LocalBridge{
		robotID: robotID,
		address: address,
		box:     box,
		writes:  writes,
		relay:   relay,
		sink:    sink,
	}
	b.lastTick.Store(-1)
	return b
}

func (b *LocalBridge) RobotID() string { return b.robotID }

func (b *LocalBridge) Address() string { return b.address }

// WaitForTick blocks until a tick newer than the last one returned.
func (b *LocalBridge) WaitForTick(ctx context.Context) (sim.TickUpdate, error) {
	u, err := b.box.Wait(ctx, b.lastTick.Load())
	if err != nil {
		return u, err
	}
	b.lastTick.Store(u.Tick)
	return u, nil
}

// Write enqueues an attribute write. Writes to "mode" block until a tick
// update reflects them.
func (b *LocalBridge) Write(ctx context.Context, path, value string) error {
	_, err := b.WriteGeneration(ctx, path, value)
	return err
}

// WriteGeneration queues a write like Write. For a mode write it also
// returns the write generation of the update that reflects it, and zero
// otherwise.
func (b *LocalBridge) WriteGeneration(ctx context.Context, path, value string) (uint64, error) {
	parsed, err := sim.ParseAttributePath(path)
	if err != nil {
		return 0, err
	}
	gen, err := b.writes.Push(ctx, sim.WriteRequest{RobotID: b.robotID, Path: path, Value: value})
	if err != nil {
		return 0, err
	}
	if parsed.Attribute != "mode" {
		return 0, nil
	}
	u, err := b.box.WaitGeneration(ctx, gen)
	if err != nil {
		return 0, err
	}
	return gen, u.Err()
}

func (b *LocalBridge) ServerStart(_ context.Context, port int) (string, error) {
	if err := b.needRelay(); err != nil {
		return "", err
	}
	return b.relay.ServerStart(b.robotID, b.address, port)
}

func (b *LocalBridge) ServerAccept(ctx context.Context, server string) (string, error) {
	if err := b.needRelay(); err != nil {
		return "", err
	}
	b.box.Enter()
	defer b.box.Leave()
	return b.relay.ServerAccept(ctx, b.robotID, server)
}

func (b *LocalBridge) ServerClose(_ context.Context, server string) error {
	if err := b.needRelay(); err != nil {
		return err
	}
	return b.relay.ServerClose(b.robotID, server)
}

func (b *LocalBridge) ClientConnect(ctx context.Context, address string, port int) (string, error) {
	if err := b.needRelay(); err != nil {
		return "", err
	}
	b.box.Enter()
	defer b.box.Leave()
	return b.relay.ClientConnect(ctx, b.robotID, address, port)
}

func (b *LocalBridge) ClientClose(_ context.Context, conn string) error {
	if err := b.needRelay(); err != nil {
		return err
	}
	return b.relay.CloseConn(b.robotID, conn)
}

func (b *LocalBridge) Send(ctx context.Context, conn string, data []byte) error {
	if err := b.needRelay(); err != nil {
		return err
	}
	b.box.Enter()
	defer b.box.Leave()
	return b.relay.Send(ctx, b.robotID, conn, data)
}

func (b *LocalBridge) Recv(ctx context.Context, conn string) ([]byte, error) {
	if err := b.needRelay(); err != nil {
		return nil, err
	}
	b.box.Enter()
	defer b.box.Leave()
	return b.relay.Recv(ctx, b.robotID, conn)
}

// Log emits a robot log line tagged with the last seen tick.
func (b *LocalBridge) Log(_ context.Context, msg string) error {
	tick := max(b.lastTick.Load(), 0)
	logrus.WithFields(logrus.Fields{"source": "robot", "robot": b.robotID}).Infof("[tick %07d] %s", tick, msg)
	if b.sink != nil {
		b.sink(b.robotID, tick, msg)
	}
	return nil
}

func (b *LocalBridge) needRelay() error {
	if b.relay == nil {
		return &sim.CommunicationsError{Robot: b.robotID, Op: "relay", Err: errors.New("no relay configured")}
	}
	return nil
}
