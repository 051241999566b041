package uip

import (
	"io"
	"net/netip"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/uipnet/uipethernet/memutils/metadata"
	"golang.org/x/exp/slog"
)

type udpConn struct {
	id        ConnID
	gen       uint32
	inUse     bool
	localPort uint16

	in            handleRing[metadata.BlockHandle]
	current       metadata.BlockHandle
	currentRemote netip.AddrPort

	out       metadata.BlockHandle
	outPos    int
	outRemote netip.AddrPort
	sending   bool
}

func (c *udpConn) printParameters(json *jwriter.ObjectState) {
	json.Name("Conn").Int(int(c.id))
	json.Name("LocalPort").Int(int(c.localPort))
	json.Name("Queued").Int(c.in.Len())
	json.Name("Reading").Bool(c.current != metadata.NoBlock)
	json.Name("Building").Bool(c.out != metadata.NoBlock)
}

// UDPCall queues inbound datagrams and hands the datagram being sent to the engine
func (s *Stack) UDPCall(ev Event) Intent {
	conn, ok := s.udpConns.Get(ev.Conn)
	if !ok {
		return Intent{}
	}

	if ev.Flags&EventNewData != 0 && ev.Data.Length > 0 {
		s.queueDatagram(conn, ev)
	}

	if ev.Flags&EventPoll != 0 && conn.sending && conn.out != metadata.NoBlock {
		return Intent{
			Payload: Segment{Handle: conn.out, Length: s.network.BlockSize(conn.out)},
			Remote:  conn.outRemote,
		}
	}

	return Intent{}
}

func (s *Stack) queueDatagram(conn *udpConn, ev Event) {
	if conn.in.Full() {
		s.logger.Debug("Stack::queueDatagram queue full, datagram dropped",
			slog.Int("Conn", int(conn.id)), slog.String("Remote", ev.Remote.String()))
		return
	}

	handle := s.network.AllocBlock(ev.Data.Length)
	if handle == metadata.NoBlock {
		s.logger.Debug("Stack::queueDatagram no buffer space, datagram dropped",
			slog.Int("Conn", int(conn.id)), slog.Int("Size", ev.Data.Length))
		return
	}

	_, err := s.network.CopyPacket(handle, 0, ev.Data.Handle, ev.Data.Offset, ev.Data.Length)
	if err != nil {
		s.logger.Error("Stack::queueDatagram failed to copy payload", slog.Int("Conn", int(conn.id)), slog.Any("error", err))
		s.freeBlock(handle)
		return
	}

	conn.in.Push(handle)
	s.udpSources.Put(handle, ev.Remote)
}

func (s *Stack) freeDatagram(handle metadata.BlockHandle) {
	s.udpSources.Delete(handle)
	s.freeBlock(handle)
}

// UDP is a datagram socket. Inbound datagrams queue up to CreateOptions.NumPackets deep, and are read one
// at a time after ParsePacket. Outbound datagrams are built between BeginPacket and EndPacket.
type UDP struct {
	stack *Stack
	conn  *udpConn
	gen   uint32
}

// NewUDP creates an unbound UDP socket
func (s *Stack) NewUDP() *UDP {
	return &UDP{stack: s}
}

func (u *UDP) valid() bool {
	return u.conn != nil && u.conn.inUse && u.conn.gen == u.gen
}

// Begin binds the socket to a local port
func (u *UDP) Begin(port uint16) error {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if u.valid() {
		s.closeUDP(u.conn)
	}
	u.conn = nil

	var conn *udpConn
	for i := range s.udpSockets {
		if !s.udpSockets[i].inUse {
			conn = &s.udpSockets[i]
			break
		}
	}
	if conn == nil {
		return ErrNoSocket
	}

	id, err := s.engine.UDPNew(port)
	if err != nil {
		return err
	}

	conn.id = id
	conn.gen++
	conn.inUse = true
	conn.localPort = port
	conn.current = metadata.NoBlock
	conn.out = metadata.NoBlock
	conn.outPos = 0
	conn.sending = false
	s.udpConns.Put(id, conn)

	u.conn = conn
	u.gen = conn.gen
	return nil
}

// Stop releases the socket and every datagram it holds
func (u *UDP) Stop() {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if u.valid() {
		s.closeUDP(u.conn)
	}
	u.conn = nil
}

func (s *Stack) closeUDP(conn *udpConn) {
	for {
		handle, ok := conn.in.PopFront()
		if !ok {
			break
		}
		s.freeDatagram(handle)
	}

	if conn.current != metadata.NoBlock {
		s.freeDatagram(conn.current)
		conn.current = metadata.NoBlock
	}

	if conn.out != metadata.NoBlock {
		s.freeBlock(conn.out)
		conn.out = metadata.NoBlock
	}

	s.engine.UDPRemove(conn.id)
	s.udpConns.Delete(conn.id)
	conn.inUse = false
}

// BeginPacket starts building a datagram for remote. A datagram being built is discarded. False is
// returned if the socket is not bound or no buffer space is available.
func (u *UDP) BeginPacket(remote netip.AddrPort) bool {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() {
		return false
	}

	conn := u.conn
	if conn.out != metadata.NoBlock {
		s.freeBlock(conn.out)
	}

	conn.out = s.network.AllocBlock(s.options.UDPPacketSize)
	conn.outPos = 0
	conn.outRemote = remote
	return conn.out != metadata.NoBlock
}

// Write appends to the datagram being built and returns how many bytes fit
func (u *UDP) Write(buf []byte) int {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() || u.conn.out == metadata.NoBlock {
		return 0
	}

	n := s.network.WritePacket(u.conn.out, u.conn.outPos, buf)
	u.conn.outPos += n
	return n
}

// EndPacket sends the datagram being built
func (u *UDP) EndPacket() bool {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() || u.conn.out == metadata.NoBlock {
		return false
	}

	conn := u.conn
	defer func() {
		s.freeBlock(conn.out)
		conn.out = metadata.NoBlock
		conn.outPos = 0
	}()

	if conn.outPos == 0 {
		return false
	}

	if err := s.network.TruncateBlock(conn.out, 0, conn.outPos); err != nil {
		s.logger.Error("UDP::EndPacket", slog.Int("Conn", int(conn.id)), slog.Any("error", err))
		return false
	}

	conn.sending = true
	out, ok := s.engine.UDPPoll(conn.id, s)
	conn.sending = false
	if ok {
		s.emit(out)
	}

	return ok
}

// ParsePacket ticks the stack, discards the datagram being read and makes the next queued one current.
// Its size is returned, or 0 if there is none.
func (u *UDP) ParsePacket() int {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tick()

	if !u.valid() {
		return 0
	}

	conn := u.conn
	if conn.current != metadata.NoBlock {
		s.freeDatagram(conn.current)
		conn.current = metadata.NoBlock
	}

	handle, ok := conn.in.PopFront()
	if !ok {
		return 0
	}

	conn.current = handle
	conn.currentRemote, _ = s.udpSources.Get(handle)
	s.udpSources.Delete(handle)
	return s.network.BlockSize(handle)
}

// Available is the number of unread bytes of the current datagram
func (u *UDP) Available() int {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() || u.conn.current == metadata.NoBlock {
		return 0
	}

	return s.network.BlockSize(u.conn.current)
}

// Read reads from the current datagram. -1 is returned when there is no current datagram.
func (u *UDP) Read(buf []byte) int {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() || u.conn.current == metadata.NoBlock {
		return -1
	}

	conn := u.conn
	size := s.network.BlockSize(conn.current)
	n := s.network.ReadPacket(conn.current, 0, buf)
	if n < size {
		if err := s.network.ResizeBlock(conn.current, n); err != nil {
			s.logger.Error("UDP::Read", slog.Int("Conn", int(conn.id)), slog.Any("error", err))
		}
		return n
	}

	s.freeDatagram(conn.current)
	conn.current = metadata.NoBlock
	return n
}

// ReadByte returns the next byte of the current datagram, or io.EOF
func (u *UDP) ReadByte() (byte, error) {
	var b [1]byte
	if u.Read(b[:]) <= 0 {
		return 0, io.EOF
	}
	return b[0], nil
}

// PeekByte returns the next byte of the current datagram without consuming it, or io.EOF
func (u *UDP) PeekByte() (byte, error) {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() || u.conn.current == metadata.NoBlock {
		return 0, io.EOF
	}

	var b [1]byte
	if s.network.ReadPacket(u.conn.current, 0, b[:]) == 0 {
		return 0, io.EOF
	}
	return b[0], nil
}

// Flush discards the rest of the current datagram
func (u *UDP) Flush() {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() || u.conn.current == metadata.NoBlock {
		return
	}

	s.freeDatagram(u.conn.current)
	u.conn.current = metadata.NoBlock
}

// RemoteAddr is the sender of the current datagram
func (u *UDP) RemoteAddr() netip.AddrPort {
	s := u.stack
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !u.valid() {
		return netip.AddrPort{}
	}
	return u.conn.currentRemote
}
