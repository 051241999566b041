package uip_test

import (
	"encoding/binary"
	"net"
	"net/netip"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/soypat/lneto/ethernet"
	"github.com/stretchr/testify/require"
	"github.com/uipnet/uipethernet/enc28j60"
	"github.com/uipnet/uipethernet/enc28j60/enc28j60sim"
	"github.com/uipnet/uipethernet/memutils/metadata"
	"github.com/uipnet/uipethernet/uip"
	"golang.org/x/exp/slog"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30}

var (
	localAddr  = netip.MustParseAddr("10.0.0.1")
	remoteAddr = netip.MustParseAddr("10.0.0.2")
)

const (
	linkHeaderSize = 14
	udpHeaderSize  = 4
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout))
}

// fakeClock moves one second forward every time it is read, so that every tick runs the periodic timers
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type loopConn struct {
	id        uip.ConnID
	peer      uip.ConnID
	localPort uint16
	remote    netip.AddrPort
	status    uip.ConnStatus

	stopped  bool
	inflight uip.Segment
}

type sentDatagram struct {
	remote  netip.AddrPort
	payload []byte
}

// loopbackEngine is a protocol engine that connects TCP connections of the same stack to each other.
// Outbound segments are emitted as frames when they are handed over, and delivered to the peer with an
// acknowledgement on the next periodic run. A peer that rejects a segment or has stopped its window gets
// it again through a retransmission on a later run.
//
// Inbound frames carry a two byte destination port and a two byte source port after the link header, and
// are delivered to the UDP connection bound to the destination port.
type loopbackEngine struct {
	network *enc28j60.Network

	nextID    uip.ConnID
	nextPort  uint16
	listening map[uint16]bool
	conns     map[uip.ConnID]*loopConn
	udp       map[uip.ConnID]uint16

	inputs    int
	datagrams []sentDatagram
}

var _ uip.Engine = (*loopbackEngine)(nil)

func newLoopbackEngine(network *enc28j60.Network) *loopbackEngine {
	return &loopbackEngine{
		network:   network,
		nextID:    1,
		nextPort:  49152,
		listening: make(map[uint16]bool),
		conns:     make(map[uip.ConnID]*loopConn),
		udp:       make(map[uip.ConnID]uint16),
	}
}

func (e *loopbackEngine) newConn(localPort uint16, remote netip.AddrPort) *loopConn {
	conn := &loopConn{id: e.nextID, localPort: localPort, remote: remote, status: uip.StatusConnecting}
	e.conns[conn.id] = conn
	e.nextID++
	return conn
}

func (e *loopbackEngine) Connect(remote netip.AddrPort) (uip.ConnID, error) {
	port := e.nextPort
	e.nextPort++

	client := e.newConn(port, remote)
	if !e.listening[remote.Port()] {
		client.status = uip.StatusClosed
		return client.id, nil
	}

	server := e.newConn(remote.Port(), netip.AddrPortFrom(localAddr, port))
	client.peer = server.id
	server.peer = client.id
	return client.id, nil
}

func (e *loopbackEngine) Listen(port uint16) {
	e.listening[port] = true
}

func (e *loopbackEngine) Unlisten(port uint16) {
	delete(e.listening, port)
}

func (e *loopbackEngine) Status(id uip.ConnID) uip.ConnStatus {
	conn, ok := e.conns[id]
	if !ok {
		return uip.StatusClosed
	}
	return conn.status
}

func (e *loopbackEngine) Abort(id uip.ConnID) {
	if conn, ok := e.conns[id]; ok {
		conn.status = uip.StatusClosed
	}
}

func (e *loopbackEngine) event(conn *loopConn, flags uip.EventFlags) uip.Event {
	return uip.Event{Flags: flags, Conn: conn.id, Remote: conn.remote, LocalPort: conn.localPort}
}

func (e *loopbackEngine) apply(app uip.Application, conn *loopConn, intent uip.Intent, emit func(uip.Output)) {
	peer := e.conns[conn.peer]
	peerOpen := peer != nil && peer.status == uip.StatusEstablished

	if intent.Abort {
		conn.status = uip.StatusClosed
		if peerOpen {
			peer.status = uip.StatusClosed
			app.TCPCall(e.event(peer, uip.EventAborted))
		}
		return
	}

	if intent.Stop {
		conn.stopped = true
	}
	if intent.Restart {
		conn.stopped = false
	}

	if intent.Payload.Length > 0 {
		conn.inflight = intent.Payload
		emit(uip.Output{Header: make([]byte, linkHeaderSize), Payload: intent.Payload})
	}

	if intent.Close {
		conn.status = uip.StatusClosed
		conn.inflight = uip.Segment{}
		if peerOpen {
			peer.status = uip.StatusClosed
			app.TCPCall(e.event(peer, uip.EventClosed))
		}
	}
}

func (e *loopbackEngine) Periodic(app uip.Application, emit func(uip.Output)) {
	ids := make([]uip.ConnID, 0, len(e.conns))
	for id := range e.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		conn := e.conns[id]

		switch conn.status {
		case uip.StatusConnecting:
			conn.status = uip.StatusEstablished
			e.apply(app, conn, app.TCPCall(e.event(conn, uip.EventConnected)), emit)
		case uip.StatusEstablished:
			if conn.inflight.Length == 0 {
				e.apply(app, conn, app.TCPCall(e.event(conn, uip.EventPoll)), emit)
				continue
			}

			peer := e.conns[conn.peer]
			if peer != nil && peer.status == uip.StatusEstablished && !peer.stopped {
				ev := e.event(peer, uip.EventNewData)
				ev.Data = conn.inflight
				intent := app.TCPCall(ev)
				e.apply(app, peer, intent, emit)

				if !intent.Reject {
					conn.inflight = uip.Segment{}
					e.apply(app, conn, app.TCPCall(e.event(conn, uip.EventAcked)), emit)
					continue
				}
			}

			e.apply(app, conn, app.TCPCall(e.event(conn, uip.EventRexmit)), emit)
		}
	}
}

func (e *loopbackEngine) Poll(id uip.ConnID, app uip.Application) (uip.Output, bool) {
	conn, ok := e.conns[id]
	if !ok || conn.status != uip.StatusEstablished || conn.inflight.Length > 0 {
		return uip.Output{}, false
	}

	var out uip.Output
	emitted := false
	e.apply(app, conn, app.TCPCall(e.event(conn, uip.EventPoll)), func(o uip.Output) {
		out = o
		emitted = true
	})
	return out, emitted
}

func (e *loopbackEngine) UDPNew(localPort uint16) (uip.ConnID, error) {
	id := e.nextID
	e.nextID++
	e.udp[id] = localPort
	return id, nil
}

func (e *loopbackEngine) UDPRemove(id uip.ConnID) {
	delete(e.udp, id)
}

func (e *loopbackEngine) UDPPoll(id uip.ConnID, app uip.Application) (uip.Output, bool) {
	port, ok := e.udp[id]
	if !ok {
		return uip.Output{}, false
	}

	intent := app.UDPCall(uip.Event{Flags: uip.EventPoll, Conn: id, LocalPort: port})
	if intent.Payload.Length == 0 {
		return uip.Output{}, false
	}

	payload := make([]byte, intent.Payload.Length)
	e.network.ReadPacket(intent.Payload.Handle, intent.Payload.Offset, payload)
	e.datagrams = append(e.datagrams, sentDatagram{remote: intent.Remote, payload: payload})

	return uip.Output{Header: make([]byte, linkHeaderSize+udpHeaderSize), Payload: intent.Payload}, true
}

func (e *loopbackEngine) Input(frame uip.Segment, header []byte, app uip.Application) (uip.Output, bool) {
	e.inputs++

	if len(header) < linkHeaderSize+udpHeaderSize {
		return uip.Output{}, false
	}

	dstPort := binary.BigEndian.Uint16(header[linkHeaderSize:])
	srcPort := binary.BigEndian.Uint16(header[linkHeaderSize+2:])
	for id, port := range e.udp {
		if port != dstPort {
			continue
		}

		offset := linkHeaderSize + udpHeaderSize
		app.UDPCall(uip.Event{
			Flags:     uip.EventNewData,
			Conn:      id,
			Data:      uip.Segment{Handle: frame.Handle, Offset: offset, Length: frame.Length - offset},
			Remote:    netip.AddrPortFrom(remoteAddr, srcPort),
			LocalPort: port,
		})
	}

	return uip.Output{}, false
}

// udpFrame builds an IPv4 frame in the loopback engine's format
func udpFrame(t *testing.T, dstPort, srcPort uint16, payload []byte) []byte {
	buf := make([]byte, linkHeaderSize+udpHeaderSize+len(payload))
	frame, err := ethernet.NewFrame(buf)
	require.NoError(t, err)
	frame.SetEtherType(ethernet.TypeIPv4)

	binary.BigEndian.PutUint16(buf[linkHeaderSize:], dstPort)
	binary.BigEndian.PutUint16(buf[linkHeaderSize+2:], srcPort)
	copy(buf[linkHeaderSize+udpHeaderSize:], payload)
	return buf
}

type testStack struct {
	*uip.Stack
	chip    *enc28j60sim.Chip
	network *enc28j60.Network
	engine  *loopbackEngine
}

func newTestStack(t *testing.T, options uip.CreateOptions) *testStack {
	chip := enc28j60sim.New()
	network, err := enc28j60.New(testLogger(), chip, enc28j60.CreateOptions{
		Sleep: func(time.Duration) {},
		Pool:  metadata.CreateOptions{MaxBlocks: 64},
	})
	require.NoError(t, err)
	require.NoError(t, network.Init(testMAC))

	engine := newLoopbackEngine(network)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	options.Clock = clock.Now

	stack, err := uip.New(testLogger(), network, engine, options)
	require.NoError(t, err)

	return &testStack{Stack: stack, chip: chip, network: network, engine: engine}
}

// connectPair opens a connection from a new client to a server listening on port and returns both ends.
// The server end is only known once it has received data, so one byte is sent through and read back.
func (s *testStack) connectPair(t *testing.T, port uint16) (*uip.Client, *uip.Client) {
	server := s.NewServer(port)
	server.Begin()

	client := s.NewClient()
	require.NoError(t, client.Connect(netip.AddrPortFrom(localAddr, port)))

	require.Equal(t, 1, client.Write([]byte{0x7e}))

	var accepted *uip.Client
	for i := 0; i < 10 && accepted == nil; i++ {
		accepted = server.Accept()
	}
	require.NotNil(t, accepted)
	b, err := accepted.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x7e), b)

	return client, accepted
}

// pump ticks the stack the given number of times
func (s *testStack) pump(ticks int) {
	for i := 0; i < ticks; i++ {
		s.Tick()
	}
}

func pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i*7)
	}
	return data
}
