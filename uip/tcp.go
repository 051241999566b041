package uip

import (
	"net/netip"
	"time"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/uipnet/uipethernet/memutils/metadata"
	"golang.org/x/exp/slog"
)

type connFlags uint8

const (
	connEstablished connFlags = 1 << iota
	// connClose is set by a local Stop while outbound data is still queued
	connClose
	// connRemoteClosed marks a record kept in the closed table for its unread data
	connRemoteClosed
	// connRestart asks the next callback to reopen a window closed with Intent.Stop
	connRestart
)

// tcpConn is the buffering record of one TCP connection. Records are preallocated by the stack and
// reused; gen changes every time a record is bound to a new connection, so that a Client holding a
// stale record can tell.
type tcpConn struct {
	id        ConnID
	gen       uint32
	inUse     bool
	flags     connFlags
	localPort uint16
	remote    netip.AddrPort

	in     handleRing[metadata.BlockHandle]
	out    handleRing[metadata.BlockHandle]
	outPos int

	stopped bool
	pollAt  time.Time

	nextClosed *tcpConn
}

func (c *tcpConn) printParameters(json *jwriter.ObjectState, network PacketBuffer) {
	json.Name("Conn").Int(int(c.id))
	json.Name("LocalPort").Int(int(c.localPort))
	json.Name("Remote").String(c.remote.String())
	json.Name("RemoteClosed").Bool(c.flags&connRemoteClosed != 0)
	json.Name("Stopped").Bool(c.stopped)

	in := json.Name("In").Array()
	for i := 0; i < c.in.Len(); i++ {
		in.Int(network.BlockSize(c.in.At(i)))
	}
	in.End()

	out := json.Name("Out").Array()
	for i := 0; i < c.out.Len(); i++ {
		out.Int(network.BlockSize(c.out.At(i)))
	}
	out.End()
	json.Name("OutPos").Int(c.outPos)
}

func (s *Stack) allocRecord(ev Event) *tcpConn {
	for i := range s.records {
		conn := &s.records[i]
		if conn.inUse {
			continue
		}

		conn.id = ev.Conn
		conn.gen++
		conn.inUse = true
		conn.flags = connEstablished
		conn.localPort = ev.LocalPort
		conn.remote = ev.Remote
		conn.outPos = 0
		conn.stopped = false
		conn.pollAt = time.Time{}
		conn.nextClosed = nil

		s.conns.Put(conn.id, conn)
		return conn
	}

	return nil
}

// releaseRecord frees every block a record holds and returns it to the free records
func (s *Stack) releaseRecord(conn *tcpConn) {
	s.flushBlocks(&conn.in)
	s.flushBlocks(&conn.out)

	if current, ok := s.conns.Get(conn.id); ok && current == conn {
		s.conns.Delete(conn.id)
	}

	conn.inUse = false
	conn.flags = 0
	conn.outPos = 0
	conn.nextClosed = nil
}

// retire handles the end of a connection on the engine's side. Outbound data is dropped; a record with
// unread inbound data moves to the closed table of its local port so it can still be read.
func (s *Stack) retire(conn *tcpConn) {
	s.flushBlocks(&conn.out)
	conn.outPos = 0
	s.conns.Delete(conn.id)

	if conn.in.Empty() || conn.flags&connClose != 0 {
		s.releaseRecord(conn)
		return
	}

	if s.closedCount >= s.options.MaxClosedConnections {
		s.logger.Warn("Stack::retire closed connection table is full, unread data lost",
			slog.Int("Conn", int(conn.id)), slog.Int("LocalPort", int(conn.localPort)))
		s.releaseRecord(conn)
		return
	}

	conn.flags = (conn.flags &^ connEstablished) | connRemoteClosed
	conn.pollAt = time.Time{}
	conn.nextClosed = nil

	head, ok := s.closed.Get(conn.localPort)
	if !ok {
		s.closed.Put(conn.localPort, conn)
	} else {
		for head.nextClosed != nil {
			head = head.nextClosed
		}
		head.nextClosed = conn
	}
	s.closedCount++
}

// unlinkClosed removes a record from the closed table
func (s *Stack) unlinkClosed(conn *tcpConn) {
	head, ok := s.closed.Get(conn.localPort)
	if !ok {
		return
	}

	if head == conn {
		if conn.nextClosed == nil {
			s.closed.Delete(conn.localPort)
		} else {
			s.closed.Put(conn.localPort, conn.nextClosed)
		}
	} else {
		for head.nextClosed != nil && head.nextClosed != conn {
			head = head.nextClosed
		}
		if head.nextClosed != conn {
			return
		}
		head.nextClosed = conn.nextClosed
	}

	conn.nextClosed = nil
	s.closedCount--
}

// TCPCall buffers the data of one TCP connection event and decides what the engine does next
func (s *Stack) TCPCall(ev Event) Intent {
	conn, ok := s.conns.Get(ev.Conn)
	if !ok {
		if ev.Flags&(EventClosed|EventAborted|EventTimedOut) != 0 {
			return Intent{}
		}

		if ev.Flags&EventConnected == 0 {
			s.logger.Debug("Stack::TCPCall event for unknown connection",
				slog.Int("Conn", int(ev.Conn)), slog.String("Flags", ev.Flags.String()))
			return Intent{Abort: true}
		}

		conn = s.allocRecord(ev)
		if conn == nil {
			s.logger.Warn("Stack::TCPCall no free connection record", slog.Int("Conn", int(ev.Conn)),
				slog.String("Remote", ev.Remote.String()))
			return Intent{Abort: true}
		}
	}

	var intent Intent
	if ev.Flags&EventNewData != 0 && ev.Data.Length > 0 {
		s.receive(conn, ev.Data, &intent)
	}

	if ev.Flags&(EventClosed|EventAborted|EventTimedOut) != 0 {
		s.retire(conn)
		return Intent{}
	}

	if conn.flags&connRestart != 0 {
		conn.flags &^= connRestart
		conn.stopped = false
		intent.Restart = true
		intent.Stop = false
	}

	if ev.Flags&EventAcked != 0 {
		if handle, ok := conn.out.PopFront(); ok {
			s.freeBlock(handle)
			if conn.out.Empty() {
				conn.outPos = 0
			}
		}
	}

	if ev.Flags&(EventAcked|EventPoll|EventRexmit) != 0 {
		intent.Payload = s.frontSegment(conn)
	}

	if conn.flags&connClose != 0 {
		if conn.out.Empty() {
			s.releaseRecord(conn)
			intent.Close = true
		} else {
			intent.Stop = true
		}
	}

	return intent
}

func (s *Stack) receive(conn *tcpConn, data Segment, intent *Intent) {
	if conn.flags&connClose != 0 {
		return
	}

	if conn.in.Full() {
		intent.Reject = true
		intent.Stop = true
		conn.stopped = true
		return
	}

	handle := s.network.AllocBlock(data.Length)
	if handle == metadata.NoBlock {
		s.logger.Debug("Stack::receive no buffer space", slog.Int("Conn", int(conn.id)), slog.Int("Size", data.Length))
		intent.Reject = true
		return
	}

	_, err := s.network.CopyPacket(handle, 0, data.Handle, data.Offset, data.Length)
	if err != nil {
		s.logger.Error("Stack::receive failed to copy payload", slog.Int("Conn", int(conn.id)), slog.Any("error", err))
		s.freeBlock(handle)
		intent.Reject = true
		return
	}

	conn.in.Push(handle)
	if conn.in.Full() {
		intent.Stop = true
		conn.stopped = true
	}
}

// frontSegment is the oldest unacknowledged outbound segment. A sole block may still be accumulating
// writes, so it is truncated to what has been written first.
func (s *Stack) frontSegment(conn *tcpConn) Segment {
	handle, ok := conn.out.Front()
	if !ok {
		return Segment{}
	}

	length := s.network.BlockSize(handle)
	if conn.out.Len() == 1 && conn.outPos < length {
		if err := s.network.TruncateBlock(handle, 0, conn.outPos); err != nil {
			s.logger.Error("Stack::frontSegment", slog.Int("Conn", int(conn.id)), slog.Any("error", err))
			return Segment{}
		}
		length = conn.outPos
	}

	if length == 0 {
		return Segment{}
	}

	return Segment{Handle: handle, Length: length}
}

// fillOutBlocks copies as much of buf as fits into the connection's outbound blocks
func (s *Stack) fillOutBlocks(conn *tcpConn, buf []byte) int {
	written := 0
	for written < len(buf) {
		handle, ok := conn.out.Back()
		if !ok || conn.outPos >= s.network.BlockSize(handle) {
			if conn.out.Full() {
				return written
			}

			handle = s.network.AllocBlock(s.options.SegmentSize)
			if handle == metadata.NoBlock {
				return written
			}

			conn.out.Push(handle)
			conn.outPos = 0
		}

		n := s.network.WritePacket(handle, conn.outPos, buf[written:])
		if n == 0 {
			return written
		}

		conn.outPos += n
		written += n
	}

	return written
}

func (s *Stack) write(conn *tcpConn, gen uint32, buf []byte) int {
	written := 0
	attempts := 0

	for {
		if !conn.inUse || conn.gen != gen || conn.flags&(connClose|connRemoteClosed) != 0 {
			return written
		}

		written += s.fillOutBlocks(conn, buf[written:])
		if written > 0 && conn.pollAt.IsZero() {
			conn.pollAt = s.options.Clock().Add(s.options.ClientTimer)
		}

		if written == len(buf) {
			return written
		}

		if s.options.WriteAttempts != WriteAttemptsForever && attempts >= s.options.WriteAttempts {
			return written
		}
		attempts++

		s.tick()
	}
}

func (s *Stack) available(conn *tcpConn) int {
	total := 0
	for i := 0; i < conn.in.Len(); i++ {
		total += s.network.BlockSize(conn.in.At(i))
	}
	return total
}

func (s *Stack) read(conn *tcpConn, buf []byte) int {
	read := 0
	for read < len(buf) {
		handle, ok := conn.in.Front()
		if !ok {
			break
		}

		size := s.network.BlockSize(handle)
		n := s.network.ReadPacket(handle, 0, buf[read:])
		read += n

		if n < size {
			if err := s.network.ResizeBlock(handle, n); err != nil {
				s.logger.Error("Stack::read", slog.Int("Conn", int(conn.id)), slog.Any("error", err))
			}
			break
		}

		conn.in.PopFront()
		s.freeBlock(handle)

		if conn.stopped && conn.flags&(connClose|connRemoteClosed) == 0 {
			conn.flags |= connRestart
		}
	}

	if conn.in.Empty() && conn.flags&connRemoteClosed != 0 {
		s.unlinkClosed(conn)
		s.releaseRecord(conn)
	}

	return read
}

// discard drops all unread inbound data
func (s *Stack) discard(conn *tcpConn) {
	s.flushBlocks(&conn.in)

	if conn.flags&connRemoteClosed != 0 {
		s.unlinkClosed(conn)
		s.releaseRecord(conn)
		return
	}

	if conn.stopped && conn.flags&connClose == 0 {
		conn.flags |= connRestart
	}
}

// stop discards unread data and asks the engine to close the connection once queued data is sent
func (s *Stack) stop(conn *tcpConn) {
	s.flushBlocks(&conn.in)

	if conn.flags&connRemoteClosed != 0 {
		s.unlinkClosed(conn)
		s.releaseRecord(conn)
		return
	}

	conn.flags |= connClose
	conn.pollAt = time.Time{}

	if out, ok := s.engine.Poll(conn.id, s); ok {
		s.emit(out)
	}
	s.tick()
}
