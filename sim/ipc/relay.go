package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
)

// ErrRelayClosed is returned by operations on a closed server or connection.
var ErrRelayClosed = errors.New("relay endpoint closed")

type serverKey struct {
	address string
	port    int
}

type server struct {
	id      string
	key     serverKey
	owner   string
	pending chan *endpoint // connect hands the server side over to accept
	closed  chan struct{}
	conns   []*endpoint
}

// endpoint is one side of a connection. in is unbuffered: a send to the
// peer completes only when the peer receives.
type endpoint struct {
	id    string
	owner string
	in    chan []byte
	peer  *endpoint
	link  *link
}

// link is shared by both endpoints of a connection.
type link struct {
	once   sync.Once
	closed chan struct{}
}

func (l *link) close() { l.once.Do(func() { close(l.closed) }) }

// Relay routes virtual Bluetooth-style connections between robots of one
// run. Handles are uuid strings.
type Relay struct {
	mu      sync.Mutex
	servers map[string]*server    // by id
	bound   map[serverKey]*server // by address and port
	conns   map[string]*endpoint
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{
		servers: make(map[string]*server),
		bound:   make(map[serverKey]*server),
		conns:   make(map[string]*endpoint),
	}
}

// ServerStart binds a server for owner on address:port.
func (r *Relay) ServerStart(owner, address string, port int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := serverKey{address, port}
	if _, taken := r.bound[key]; taken {
		return "", &sim.CommunicationsError{Robot: owner, Op: "server_start", Err: fmt.Errorf("%s:%d already bound", address, port)}
	}
	s := &server{
		id:      uuid.NewString(),
		key:     key,
		owner:   owner,
		pending: make(chan *endpoint),
		closed:  make(chan struct{}),
	}
	r.servers[s.id] = s
	r.bound[key] = s
	logrus.WithFields(logrus.Fields{"source": "sim", "robot": owner}).Debugf("server %s listening on %s:%d", s.id, address, port)
	return s.id, nil
}

// ServerAccept waits for the next client and returns the server-side
// connection handle.
func (r *Relay) ServerAccept(ctx context.Context, owner, serverID string) (string, error) {
	r.mu.Lock()
	s, ok := r.servers[serverID]
	r.mu.Unlock()
	if !ok || s.owner != owner {
		return "", &sim.CommunicationsError{Robot: owner, Op: "server_accept", Err: fmt.Errorf("unknown server %s", serverID)}
	}
	select {
	case ep := <-s.pending:
		r.mu.Lock()
		defer r.mu.Unlock()
		select {
		case <-s.closed:
			ep.link.close()
			return "", &sim.CommunicationsError{Robot: owner, Op: "server_accept", Err: ErrRelayClosed}
		default:
		}
		r.conns[ep.id] = ep
		s.conns = append(s.conns, ep)
		return ep.id, nil
	case <-s.closed:
		return "", &sim.CommunicationsError{Robot: owner, Op: "server_accept", Err: ErrRelayClosed}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ClientConnect connects to the server at address:port, blocking until it
// accepts. Returns the client-side connection handle.
func (r *Relay) ClientConnect(ctx context.Context, owner, address string, port int) (string, error) {
	r.mu.Lock()
	s, ok := r.bound[serverKey{address, port}]
	r.mu.Unlock()
	if !ok {
		return "", &sim.CommunicationsError{Robot: owner, Op: "client_connect", Err: fmt.Errorf("no server at %s:%d", address, port)}
	}
	l := &link{closed: make(chan struct{})}
	client := &endpoint{id: uuid.NewString(), owner: owner, in: make(chan []byte), link: l}
	serverSide := &endpoint{id: uuid.NewString(), owner: s.owner, in: make(chan []byte), link: l}
	client.peer, serverSide.peer = serverSide, client

	select {
	case s.pending <- serverSide:
	case <-s.closed:
		return "", &sim.CommunicationsError{Robot: owner, Op: "client_connect", Err: ErrRelayClosed}
	case <-ctx.Done():
		return "", ctx.Err()
	}
	r.mu.Lock()
	r.conns[client.id] = client
	r.mu.Unlock()
	return client.id, nil
}

// Send hands data to the peer, completing only when the peer receives it.
func (r *Relay) Send(ctx context.Context, owner, connID string, data []byte) error {
	ep, err := r.endpoint(owner, connID, "send")
	if err != nil {
		return err
	}
	buf := append([]byte(nil), data...)
	select {
	case ep.peer.in <- buf:
		return nil
	case <-ep.link.closed:
		return &sim.CommunicationsError{Robot: owner, Op: "send", Err: ErrRelayClosed}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv waits for the peer's next send.
func (r *Relay) Recv(ctx context.Context, owner, connID string) ([]byte, error) {
	ep, err := r.endpoint(owner, connID, "recv")
	if err != nil {
		return nil, err
	}
	select {
	case data := <-ep.in:
		return data, nil
	case <-ep.link.closed:
		return nil, &sim.CommunicationsError{Robot: owner, Op: "recv", Err: ErrRelayClosed}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseConn closes both ends of a connection.
func (r *Relay) CloseConn(owner, connID string) error {
	ep, err := r.endpoint(owner, connID, "client_close")
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(ep)
	return nil
}

// ServerClose closes a server and every connection it accepted.
func (r *Relay) ServerClose(owner, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[serverID]
	if !ok || s.owner != owner {
		return &sim.CommunicationsError{Robot: owner, Op: "server_close", Err: fmt.Errorf("unknown server %s", serverID)}
	}
	r.closeServerLocked(s)
	return nil
}

// CloseOwner releases every server and connection held by a robot.
func (r *Relay) CloseOwner(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.owner == owner {
			r.closeServerLocked(s)
		}
	}
	for _, ep := range r.conns {
		if ep.owner == owner {
			r.dropLocked(ep)
		}
	}
}

// Conns is the number of open connection endpoints.
func (r *Relay) Conns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Relay) endpoint(owner, connID, op string) (*endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.conns[connID]
	if !ok || ep.owner != owner {
		return nil, &sim.CommunicationsError{Robot: owner, Op: op, Err: fmt.Errorf("unknown connection %s", connID)}
	}
	return ep, nil
}

func (r *Relay) closeServerLocked(s *server) {
	close(s.closed)
	for _, ep := range s.conns {
		r.dropLocked(ep)
	}
	delete(r.servers, s.id)
	delete(r.bound, s.key)
}

func (r *Relay) dropLocked(ep *endpoint) {
	ep.link.close()
	delete(r.conns, ep.id)
	delete(r.conns, ep.peer.id)
}
