package uip

// Server listens on one local port
type Server struct {
	stack *Stack
	port  uint16
}

// NewServer creates a server for port. It does not listen until Begin.
func (s *Stack) NewServer(port uint16) *Server {
	return &Server{stack: s, port: port}
}

func (sv *Server) Begin() {
	s := sv.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.engine.Listen(sv.port)
}

// End stops accepting connections. Connections already accepted are not affected.
func (sv *Server) End() {
	s := sv.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.engine.Unlisten(sv.port)
}

// Accept ticks the stack and returns a client with data to read on the server's port, or nil. Connections
// that the peer already closed are returned after live ones, oldest first.
func (sv *Server) Accept() *Client {
	s := sv.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tick()

	for i := range s.records {
		conn := &s.records[i]
		if !conn.inUse || conn.localPort != sv.port || conn.flags&(connRemoteClosed|connClose) != 0 {
			continue
		}

		if !conn.in.Empty() {
			return &Client{stack: s, conn: conn, gen: conn.gen}
		}
	}

	if conn, ok := s.closed.Get(sv.port); ok {
		return &Client{stack: s, conn: conn, gen: conn.gen}
	}

	return nil
}

// Write sends buf to every client connected on the server's port and returns the total number of bytes
// queued
func (sv *Server) Write(buf []byte) int {
	s := sv.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	total := 0
	for i := range s.records {
		conn := &s.records[i]
		if !conn.inUse || conn.localPort != sv.port || conn.flags&connEstablished == 0 {
			continue
		}

		total += s.write(conn, conn.gen, buf)
	}

	return total
}
