package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/ipc"
)

// ErrClientClosed is returned by calls on a client whose socket has gone.
var ErrClientClosed = errors.New("relay client closed")

// Client is the robot end of the websocket bridge.
type Client struct {
	conn    *websocket.Conn
	robotID string
	address string
	ticks   *ipc.Mailbox

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      uint64
	pending  map[uint64]chan Reply
	lastTick int64 // last tick handed to the program
	acked    int64
	done     chan struct{}
	err      error
}

// Dial connects to a simulator at url (ws://host:port/robot) and attaches
// to robotID.
func Dial(ctx context.Context, url, robotID string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:     conn,
		robotID:  robotID,
		ticks:    ipc.NewMailbox(),
		pending:  make(map[uint64]chan Reply),
		lastTick: -1,
		acked:    -1,
		done:     make(chan struct{}),
	}
	if err := c.write(Request{Type: TypeSubscribe, Robot: robotID}); err != nil {
		conn.Close()
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	var welcome Reply
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", robotID, err)
	}
	conn.SetReadDeadline(time.Time{})
	if welcome.Type != TypeWelcome {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: unexpected %q", robotID, welcome.Type)
	}
	c.address = welcome.Address
	go c.readLoop()
	return c, nil
}

func (c *Client) RobotID() string { return c.robotID }

func (c *Client) Address() string { return c.address }

// Done is closed when the socket goes away.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the session.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		var r Reply
		if err := json.Unmarshal(payload, &r); err != nil {
			logrus.WithFields(logrus.Fields{"source": "robot", "robot": c.robotID}).Warnf("relay: discarding malformed message: %v", err)
			continue
		}
		switch r.Type {
		case TypeTick:
			if r.Update != nil {
				c.ticks.Put(*r.Update, time.Now())
			}
		case TypeReply:
			c.mu.Lock()
			ch, ok := c.pending[r.Seq]
			delete(c.pending, r.Seq)
			c.mu.Unlock()
			if ok {
				ch <- r
			}
		}
	}
}

func (c *Client) shutdown() {
	c.ticks.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.done)
	c.conn.Close()
}

func (c *Client) write(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// call sends a request and waits for its reply.
func (c *Client) call(ctx context.Context, req Request) (Reply, error) {
	ch := make(chan Reply, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return Reply{}, &sim.CommunicationsError{Robot: c.robotID, Op: req.Type, Err: ErrClientClosed}
	default:
	}
	c.seq++
	req.Seq = c.seq
	c.pending[req.Seq] = ch
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.forget(req.Seq)
		return Reply{}, &sim.CommunicationsError{Robot: c.robotID, Op: req.Type, Err: err}
	}
	select {
	case r := <-ch:
		return r, replyError(c.robotID, req.Type, r)
	case <-c.done:
		return Reply{}, &sim.CommunicationsError{Robot: c.robotID, Op: req.Type, Err: ErrClientClosed}
	case <-ctx.Done():
		c.forget(req.Seq)
		return Reply{}, ctx.Err()
	}
}

func (c *Client) forget(seq uint64) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// WaitForTick returns the next tick and acks it.
func (c *Client) WaitForTick(ctx context.Context) (sim.TickUpdate, error) {
	c.mu.Lock()
	after := c.lastTick
	c.mu.Unlock()
	u, err := c.ticks.Wait(ctx, after)
	if err != nil {
		return u, err
	}
	c.mu.Lock()
	c.lastTick = u.Tick
	c.mu.Unlock()
	return u, c.ack(u.Tick)
}

// ack releases the server's next tick. Each tick is acked at most once.
func (c *Client) ack(tick int64) error {
	c.mu.Lock()
	if tick <= c.acked {
		c.mu.Unlock()
		return nil
	}
	c.acked = tick
	c.mu.Unlock()
	if err := c.write(Request{Type: TypeAck, Tick: tick}); err != nil {
		return &sim.CommunicationsError{Robot: c.robotID, Op: TypeAck, Err: err}
	}
	return nil
}

// Write queues a write. A mode write returns once this client holds a tick
// that reflects it.
func (c *Client) Write(ctx context.Context, path, value string) error {
	r, err := c.call(ctx, Request{Type: TypeWrite, Path: path, Value: value})
	if err != nil || r.Gen == 0 {
		return err
	}
	return c.awaitGeneration(ctx, r.Gen)
}

// awaitGeneration acks the ticks it passes without consuming them, since
// the server sends nothing newer until the held tick is acked.
func (c *Client) awaitGeneration(ctx context.Context, gen uint64) error {
	after := int64(-1)
	for {
		u, err := c.ticks.Latest(ctx, after)
		if err != nil {
			return err
		}
		if u.WriteGeneration >= gen {
			return u.Err()
		}
		if err := c.ack(u.Tick); err != nil {
			return err
		}
		after = u.Tick
	}
}

func (c *Client) ServerStart(ctx context.Context, port int) (string, error) {
	r, err := c.call(ctx, Request{Type: TypeServerStart, Port: port})
	return r.ID, err
}

func (c *Client) ServerAccept(ctx context.Context, server string) (string, error) {
	r, err := c.call(ctx, Request{Type: TypeServerAccept, Server: server})
	return r.ID, err
}

func (c *Client) ServerClose(ctx context.Context, server string) error {
	_, err := c.call(ctx, Request{Type: TypeServerClose, Server: server})
	return err
}

func (c *Client) ClientConnect(ctx context.Context, address string, port int) (string, error) {
	r, err := c.call(ctx, Request{Type: TypeClientConnect, Address: address, Port: port})
	return r.ID, err
}

func (c *Client) ClientClose(ctx context.Context, conn string) error {
	_, err := c.call(ctx, Request{Type: TypeClientClose, Conn: conn})
	return err
}

func (c *Client) Send(ctx context.Context, conn string, data []byte) error {
	_, err := c.call(ctx, Request{Type: TypeSend, Conn: conn, Data: data})
	return err
}

func (c *Client) Recv(ctx context.Context, conn string) ([]byte, error) {
	r, err := c.call(ctx, Request{Type: TypeRecv, Conn: conn})
	return r.Data, err
}

func (c *Client) Log(ctx context.Context, msg string) error {
	_, err := c.call(ctx, Request{Type: TypeLog, Message: msg})
	return err
}
