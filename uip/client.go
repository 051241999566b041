package uip

import (
	"io"
	"net/netip"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Client is one TCP connection, either opened with Connect or handed out by Server.Accept.
//
// Data received from the peer stays readable after the peer closes the connection, until it has been read
// or Stop is called.
type Client struct {
	stack *Stack
	conn  *tcpConn
	gen   uint32
}

// NewClient creates an unconnected client
func (s *Stack) NewClient() *Client {
	return &Client{stack: s}
}

func (c *Client) valid() bool {
	return c.conn != nil && c.conn.inUse && c.conn.gen == c.gen
}

// Connect opens a connection to remote, ticking the stack until it is established. A connection the client
// already holds is stopped first.
func (c *Client) Connect(remote netip.AddrPort) error {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c.valid() {
		s.stop(c.conn)
	}
	c.conn = nil

	id, err := s.engine.Connect(remote)
	if err != nil {
		return cerrors.Wrapf(err, "connecting to %s", remote)
	}

	s.logger.Debug("Client::Connect", slog.Int("Conn", int(id)), slog.String("Remote", remote.String()))

	start := s.options.Clock()
	for {
		s.tick()

		if conn, ok := s.conns.Get(id); ok {
			c.conn = conn
			c.gen = conn.gen
			return nil
		}

		if s.engine.Status(id) == StatusClosed {
			return cerrors.Wrapf(ErrConnectRefused, "connecting to %s", remote)
		}

		if s.options.ConnectTimeout > 0 && s.options.Clock().Sub(start) >= s.options.ConnectTimeout {
			s.engine.Abort(id)
			return cerrors.Wrapf(ErrConnectTimeout, "connecting to %s after %s", remote, s.options.ConnectTimeout)
		}
	}
}

// Write queues buf for sending and returns how many bytes were accepted. Fewer than len(buf) bytes means
// the buffer is full, subject to CreateOptions.WriteAttempts.
func (c *Client) Write(buf []byte) int {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !c.valid() {
		return 0
	}

	return s.write(c.conn, c.gen, buf)
}

// WriteByte queues one byte, returning ErrBufferFull if there is no room for it
func (c *Client) WriteByte(b byte) error {
	if c.Write([]byte{b}) == 0 {
		return ErrBufferFull
	}
	return nil
}

// Available ticks the stack and returns the number of bytes that can be read
func (c *Client) Available() int {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tick()

	if !c.valid() {
		return 0
	}
	return s.available(c.conn)
}

// Read reads buffered data into buf. -1 is returned when the client holds no connection.
func (c *Client) Read(buf []byte) int {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !c.valid() {
		return -1
	}
	return s.read(c.conn, buf)
}

// ReadByte returns the next byte, or io.EOF if none is buffered
func (c *Client) ReadByte() (byte, error) {
	var b [1]byte
	if c.Read(b[:]) <= 0 {
		return 0, io.EOF
	}
	return b[0], nil
}

// PeekByte returns the next byte without consuming it, or io.EOF if none is buffered
func (c *Client) PeekByte() (byte, error) {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !c.valid() {
		return 0, io.EOF
	}

	handle, ok := c.conn.in.Front()
	if !ok {
		return 0, io.EOF
	}

	var b [1]byte
	if s.network.ReadPacket(handle, 0, b[:]) == 0 {
		return 0, io.EOF
	}
	return b[0], nil
}

// Flush discards all buffered inbound data
func (c *Client) Flush() {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c.valid() {
		s.discard(c.conn)
	}
}

// Stop discards buffered inbound data and closes the connection once queued outbound data is sent
func (c *Client) Stop() {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c.valid() {
		s.stop(c.conn)
	}
	c.conn = nil
}

// Connected ticks the stack and reports whether the connection is established or still has data to read
func (c *Client) Connected() bool {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tick()

	if !c.valid() {
		return false
	}
	return !c.conn.in.Empty() || c.conn.flags&connEstablished != 0
}

// RemoteAddr is the peer of the connection
func (c *Client) RemoteAddr() netip.AddrPort {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !c.valid() {
		return netip.AddrPort{}
	}
	return c.conn.remote
}

// LocalPort is the local port of the connection
func (c *Client) LocalPort() uint16 {
	s := c.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !c.valid() {
		return 0
	}
	return c.conn.localPort
}
