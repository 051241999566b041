package uip

import (
	"context"
	"net/netip"
	"time"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/soypat/lneto/ethernet"
	"github.com/uipnet/uipethernet/memutils/metadata"
	"github.com/uipnet/uipethernet/uip/internal/utils"
	"golang.org/x/exp/slog"
)

// DetailedMapPrinter is implemented by packet buffers that can describe their layout
type DetailedMapPrinter interface {
	PrintDetailedMap(json jwriter.ObjectState)
}

// Stack connects a PacketBuffer to a protocol Engine. Tick pumps received frames into the engine and
// transmits the frames it produces, and the connection callbacks keep each socket's inbound and outbound
// data as segments in the packet buffer. Sockets are created from the Stack and every socket call runs
// on the caller's goroutine, ticking the stack as needed; no background goroutine is started.
type Stack struct {
	logger  *slog.Logger
	network PacketBuffer
	engine  Engine
	options CreateOptions

	mutex utils.OptionalMutex

	records     []tcpConn
	conns       *swiss.Map[ConnID, *tcpConn]
	closed      *swiss.Map[uint16, *tcpConn]
	closedCount int

	udpSockets []udpConn
	udpConns   *swiss.Map[ConnID, *udpConn]
	udpSources *swiss.Map[metadata.BlockHandle, netip.AddrPort]

	scratch      []byte
	inPacket     metadata.BlockHandle
	lastPeriodic time.Time
}

var _ Application = (*Stack)(nil)

// New creates a Stack over network, driven by engine
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, network PacketBuffer, engine Engine, options CreateOptions) (*Stack, error) {
	if network == nil {
		return nil, errors.New("a stack requires a packet buffer")
	}

	if engine == nil {
		return nil, errors.New("a stack requires a protocol engine")
	}

	if logger == nil {
		logger = slog.Default()
	}

	err := options.applyDefaults()
	if err != nil {
		return nil, err
	}

	s := &Stack{
		logger:  logger,
		network: network,
		engine:  engine,
		options: options,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&CreateExternallySynchronized == 0,
		},

		records: make([]tcpConn, options.MaxConnections),
		conns:   swiss.NewMap[ConnID, *tcpConn](uint32(options.MaxConnections)),
		closed:  swiss.NewMap[uint16, *tcpConn](uint32(options.MaxClosedConnections)),

		udpSockets: make([]udpConn, options.MaxUDPConnections),
		udpConns:   swiss.NewMap[ConnID, *udpConn](uint32(options.MaxUDPConnections)),
		udpSources: swiss.NewMap[metadata.BlockHandle, netip.AddrPort](uint32(options.MaxUDPConnections * options.NumPackets)),

		scratch: make([]byte, options.ScratchSize),
	}

	for i := range s.records {
		s.records[i].in = newHandleRing[metadata.BlockHandle](options.NumPackets)
		s.records[i].out = newHandleRing[metadata.BlockHandle](options.NumPackets)
	}

	for i := range s.udpSockets {
		s.udpSockets[i].in = newHandleRing[metadata.BlockHandle](options.NumPackets)
	}

	return s, nil
}

// Tick receives at most one frame and hands it to the engine, runs the engine's periodic timers when they
// are due, and polls connections whose written data has waited for ClientTimer
func (s *Stack) Tick() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tick()
}

func (s *Stack) tick() {
	if s.inPacket == metadata.NoBlock {
		s.inPacket = s.network.ReceivePacket()
		if s.inPacket != metadata.NoBlock {
			s.input(s.inPacket)

			err := s.network.FreeBlock(s.inPacket)
			if err != nil {
				s.logger.LogAttrs(context.Background(), slog.LevelError, "Stack::tick failed to release frame",
					slog.Int("Handle", int(s.inPacket)), slog.Any("error", err))
			}
			s.inPacket = metadata.NoBlock
		}
	}

	now := s.options.Clock()
	if now.Sub(s.lastPeriodic) >= s.options.PeriodicInterval {
		s.lastPeriodic = now
		s.engine.Periodic(s, s.emit)
	}

	for i := range s.records {
		conn := &s.records[i]
		if !conn.inUse || conn.pollAt.IsZero() || now.Before(conn.pollAt) {
			continue
		}

		conn.pollAt = time.Time{}
		if conn.flags&connRemoteClosed != 0 {
			continue
		}

		if out, ok := s.engine.Poll(conn.id, s); ok {
			s.emit(out)
		}
	}
}

func (s *Stack) input(packet metadata.BlockHandle) {
	n := s.network.ReadPacket(packet, 0, s.scratch)

	frame, err := ethernet.NewFrame(s.scratch[:n])
	if err != nil {
		s.logger.Debug("Stack::input dropped runt frame", slog.Int("Size", n))
		return
	}

	switch frame.EtherTypeOrSize() {
	case ethernet.TypeIPv4, ethernet.TypeARP:
	default:
		s.logger.Debug("Stack::input dropped frame", slog.Int("EtherType", int(frame.EtherTypeOrSize())))
		return
	}

	segment := Segment{Handle: packet, Length: s.network.BlockSize(packet)}
	if out, ok := s.engine.Input(segment, s.scratch[:n], s); ok {
		s.emit(out)
	}
}

// emit transmits a frame built by the engine: its header followed by the payload segment, copied into a
// fresh block by DMA
func (s *Stack) emit(out Output) {
	size := len(out.Header) + out.Payload.Length
	if size == 0 {
		return
	}

	packet := s.network.AllocBlock(size)
	if packet == metadata.NoBlock {
		s.logger.Warn("Stack::emit dropped frame, no buffer space", slog.Int("Size", size))
		return
	}

	defer func() {
		if err := s.network.FreeBlock(packet); err != nil {
			s.logger.LogAttrs(context.Background(), slog.LevelError, "Stack::emit failed to release frame",
				slog.Int("Handle", int(packet)), slog.Any("error", err))
		}
	}()

	s.network.WritePacket(packet, 0, out.Header)

	if out.Payload.Length > 0 {
		_, err := s.network.CopyPacket(packet, len(out.Header), out.Payload.Handle, out.Payload.Offset, out.Payload.Length)
		if err != nil {
			s.logger.LogAttrs(context.Background(), slog.LevelError, "Stack::emit failed to copy payload",
				slog.Int("Handle", int(out.Payload.Handle)), slog.Any("error", err))
			return
		}
	}

	if err := s.network.SendPacket(packet); err != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelError, "Stack::emit", slog.Any("error", err))
	}
}

func (s *Stack) freeBlock(handle metadata.BlockHandle) {
	if err := s.network.FreeBlock(handle); err != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelError, "Stack::freeBlock",
			slog.Int("Handle", int(handle)), slog.Any("error", err))
	}
}

func (s *Stack) flushBlocks(ring *handleRing[metadata.BlockHandle]) {
	for {
		handle, ok := ring.PopFront()
		if !ok {
			return
		}
		s.freeBlock(handle)
	}
}

// BuildStatsString returns a JSON description of every live connection and socket. With detailedMap set,
// the packet buffer's layout is included if it can describe it.
func (s *Stack) BuildStatsString(detailedMap bool) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	tcp := obj.Name("TCP").Array()
	for i := range s.records {
		conn := &s.records[i]
		if !conn.inUse {
			continue
		}

		o := tcp.Object()
		conn.printParameters(&o, s.network)
		o.End()
	}
	tcp.End()

	obj.Name("ClosedConnections").Int(s.closedCount)

	udp := obj.Name("UDP").Array()
	for i := range s.udpSockets {
		conn := &s.udpSockets[i]
		if !conn.inUse {
			continue
		}

		o := udp.Object()
		conn.printParameters(&o)
		o.End()
	}
	udp.End()

	if printer, ok := s.network.(DetailedMapPrinter); ok && detailedMap {
		buffer := obj.Name("Buffer").Object()
		printer.PrintDetailedMap(buffer)
		buffer.End()
	}

	obj.End()
	return string(writer.Bytes())
}

// Destroy aborts every connection, closes every UDP socket and releases all the blocks they hold
func (s *Stack) Destroy() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.records {
		conn := &s.records[i]
		if !conn.inUse {
			continue
		}

		if conn.flags&connRemoteClosed != 0 {
			s.unlinkClosed(conn)
		} else {
			s.engine.Abort(conn.id)
		}
		s.releaseRecord(conn)
	}

	for i := range s.udpSockets {
		if s.udpSockets[i].inUse {
			s.closeUDP(&s.udpSockets[i])
		}
	}
}
