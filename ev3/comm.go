package ev3

import "context"

// Server is a listening comm server on the robot's address.
type Server struct {
	brick *Brick
	id    string
	Port  int
}

// Conn is one end of a comm connection.
type Conn struct {
	brick *Brick
	id    string
}

// Listen starts a server on port.
func (b *Brick) Listen(ctx context.Context, port int) (*Server, error) {
	id, err := b.bridge.ServerStart(ctx, port)
	if err != nil {
		return nil, err
	}
	return &Server{brick: b, id: id, Port: port}, nil
}

// Accept blocks until a client connects.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	id, err := s.brick.bridge.ServerAccept(ctx, s.id)
	if err != nil {
		return nil, err
	}
	return &Conn{brick: s.brick, id: id}, nil
}

// Close stops the server and closes every connection it accepted.
func (s *Server) Close(ctx context.Context) error {
	return s.brick.bridge.ServerClose(ctx, s.id)
}

// Dial connects to the server at address:port.
func (b *Brick) Dial(ctx context.Context, address string, port int) (*Conn, error) {
	id, err := b.bridge.ClientConnect(ctx, address, port)
	if err != nil {
		return nil, err
	}
	return &Conn{brick: b, id: id}, nil
}

// Send returns once the peer has received data.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	return c.brick.bridge.Send(ctx, c.id, data)
}

func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	return c.brick.bridge.Recv(ctx, c.id)
}

func (c *Conn) Close(ctx context.Context) error {
	return c.brick.bridge.ClientClose(ctx, c.id)
}
