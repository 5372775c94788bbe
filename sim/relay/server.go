package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/ipc"
)

const (
	writeWait     = 10 * time.Second
	subscribeWait = 10 * time.Second
)

// ServerConfig wires a Server to the run it serves.
type ServerConfig struct {
	Hub    *ipc.Hub
	Writes *sim.WriteQueue
	Relay  *ipc.Relay
	Sink   ipc.LogSink
}

// Server accepts websocket robots for the robots a run expects to be
// driven remotely.
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	remotes  map[string]*Remote
	sessions map[*session]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// Remote is a robot waiting for, or attached to, a websocket session. It
// stands in for the robot's program.
type Remote struct {
	address  string
	attached bool
	done     chan struct{}
	once     sync.Once
}

func (r *Remote) finish() { r.once.Do(func() { close(r.done) }) }

// Done is closed when the robot's session ends.
func (r *Remote) Done() <-chan struct{} { return r.done }

// NewServer creates a server. Hub and Writes are required.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Hub == nil || cfg.Writes == nil {
		panic("relay.NewServer: Hub and Writes are required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		remotes:  make(map[string]*Remote),
		sessions: make(map[*session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Expect reserves robotID for a remote program. The returned handle's Done
// channel closes when that program's session ends.
func (s *Server) Expect(robotID, address string) *Remote {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Remote{address: address, done: make(chan struct{})}
	s.remotes[robotID] = r
	return r
}

// Handler serves the robot socket on /robot.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/robot", s.Handle)
	return mux
}

// Close ends every session and releases robots still waiting.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	for _, r := range s.remotes {
		r.finish()
	}
}

func (s *Server) claim(robotID string) (*Remote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.remotes[robotID]
	switch {
	case !ok:
		return nil, fmt.Errorf("robot %q is not driven remotely", robotID)
	case r.attached:
		return nil, fmt.Errorf("robot %q already has a session", robotID)
	}
	select {
	case <-r.done:
		return nil, fmt.Errorf("robot %q has finished", robotID)
	default:
	}
	r.attached = true
	return r, nil
}

// Handle upgrades one robot connection and serves it until either side
// goes away.
func (s *Server) Handle(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logrus.WithField("source", "sim").Warnf("relay: upgrade failed: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(subscribeWait))
	var hello Request
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != TypeSubscribe {
		reject(conn, "expected subscribe")
		return
	}
	conn.SetReadDeadline(time.Time{})

	r, err := s.claim(hello.Robot)
	if err != nil {
		reject(conn, err.Error())
		return
	}
	box, ok := s.cfg.Hub.Mailbox(hello.Robot)
	if !ok {
		r.finish()
		reject(conn, fmt.Sprintf("robot %q is not running", hello.Robot))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	sess := &session{
		conn:   conn,
		robot:  hello.Robot,
		bridge: ipc.NewLocalBridge(hello.Robot, r.address, box, s.cfg.Writes, s.cfg.Relay, s.cfg.Sink),
		acks:   make(chan int64, 1),
		log:    logrus.WithFields(logrus.Fields{"source": "sim", "robot": hello.Robot}),
	}
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	defer func() {
		cancel()
		conn.Close()
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		r.finish()
		sess.log.Info("relay: session ended")
	}()

	if err := sess.send(Reply{Type: TypeWelcome, Ver: ProtocolVersion, Robot: hello.Robot, Address: r.address}); err != nil {
		return
	}
	sess.log.Info("relay: robot attached")

	go sess.pump(ctx, cancel)

	for {
		var msg Request
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			sess.log.Warnf("relay: discarding malformed message: %v", err)
			continue
		}
		if msg.Type == TypeAck {
			select {
			case sess.acks <- msg.Tick:
			default:
			}
			continue
		}
		go sess.serve(ctx, msg)
	}
}

func reject(conn *websocket.Conn, reason string) {
	logrus.WithField("source", "sim").Warnf("relay: rejecting robot: %s", reason)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}

// session is one attached robot.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	robot   string
	bridge  *ipc.LocalBridge
	acks    chan int64
	log     *logrus.Entry
}

func (s *session) send(r Reply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// pump forwards tick updates, one outstanding at a time, so an unacked
// tick stays in the mailbox and counts toward the heartbeat.
func (s *session) pump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		u, err := s.bridge.WaitForTick(ctx)
		if err != nil {
			if errors.Is(err, ipc.ErrMailboxClosed) {
				s.writeMu.Lock()
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "robot retired"))
				s.writeMu.Unlock()
				s.conn.Close()
			}
			return
		}
		if err := s.send(Reply{Type: TypeTick, Update: &u}); err != nil {
			s.log.Warnf("relay: tick %d not delivered: %v", u.Tick, err)
			s.conn.Close()
			return
		}
		select {
		case <-s.acks:
		case <-ctx.Done():
			return
		}
	}
}

// serve runs one verb and replies with its sequence number.
func (s *session) serve(ctx context.Context, msg Request) {
	reply := Reply{Type: TypeReply, Seq: msg.Seq}
	var err error
	switch msg.Type {
	case TypeWrite:
		reply.Gen, err = s.bridge.WriteGeneration(ctx, msg.Path, msg.Value)
	case TypeServerStart:
		reply.ID, err = s.bridge.ServerStart(ctx, msg.Port)
	case TypeServerAccept:
		reply.ID, err = s.bridge.ServerAccept(ctx, msg.Server)
	case TypeServerClose:
		err = s.bridge.ServerClose(ctx, msg.Server)
	case TypeClientConnect:
		reply.ID, err = s.bridge.ClientConnect(ctx, msg.Address, msg.Port)
	case TypeClientClose:
		err = s.bridge.ClientClose(ctx, msg.Conn)
	case TypeSend:
		err = s.bridge.Send(ctx, msg.Conn, msg.Data)
	case TypeRecv:
		reply.Data, err = s.bridge.Recv(ctx, msg.Conn)
	case TypeLog:
		err = s.bridge.Log(ctx, msg.Message)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		reply.Error, reply.Kind = err.Error(), errorKind(err)
	}
	if err := s.send(reply); err != nil {
		s.log.Warnf("relay: reply to %s #%d not delivered: %v", msg.Type, msg.Seq, err)
	}
}
