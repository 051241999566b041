package uip

import (
	"net/netip"
	"strings"

	"github.com/uipnet/uipethernet/memutils/metadata"
)

// ConnID identifies a TCP or UDP connection inside the protocol engine
type ConnID uint16

// Segment is a byte range inside a block of the packet buffer. Payload never passes through host memory:
// events and intents refer to it where it lies in the chip's buffer.
type Segment struct {
	Handle metadata.BlockHandle
	Offset int
	Length int
}

// EventFlags describe why the protocol engine is calling a connection back. Several flags may be set in
// one call.
type EventFlags uint8

const (
	// EventConnected is set on the first call for a connection that has just been established
	EventConnected EventFlags = 1 << iota
	// EventNewData is set when the peer sent data, which is described by Event.Data
	EventNewData
	// EventAcked is set when the peer acknowledged the oldest outstanding segment
	EventAcked
	// EventPoll is an opportunity to send new data
	EventPoll
	// EventRexmit asks for the last unacknowledged segment to be sent again
	EventRexmit
	// EventClosed is set when the peer closed the connection
	EventClosed
	// EventAborted is set when the peer reset the connection
	EventAborted
	// EventTimedOut is set when the engine gave up on retransmissions
	EventTimedOut
)

var eventFlagsMapping = map[EventFlags]string{
	EventConnected: "EventConnected",
	EventNewData:   "EventNewData",
	EventAcked:     "EventAcked",
	EventPoll:      "EventPoll",
	EventRexmit:    "EventRexmit",
	EventClosed:    "EventClosed",
	EventAborted:   "EventAborted",
	EventTimedOut:  "EventTimedOut",
}

func (f EventFlags) String() string {
	return flagsToString(f, eventFlagsMapping)
}

func flagsToString[T ~uint8 | ~int32](flags T, mapping map[T]string) string {
	if flags == 0 {
		return "None"
	}

	var names []string
	for bit := T(1); bit != 0 && bit <= flags; bit <<= 1 {
		if flags&bit == 0 {
			continue
		}

		name, ok := mapping[bit]
		if !ok {
			name = "Unknown"
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

// Event is what the protocol engine passes to an Application for one connection
type Event struct {
	Flags EventFlags
	Conn  ConnID
	// Data is the payload of the current inbound packet when EventNewData is set. It is only valid for the
	// duration of the call.
	Data Segment
	// Remote is the peer's address. For UDP it is the sender of the current datagram.
	Remote    netip.AddrPort
	LocalPort uint16
}

// Intent is an Application's answer to an Event
type Intent struct {
	// Payload is the data to send, if Length is nonzero. For TCP it must stay in the buffer until it is
	// acknowledged, because it may be requested again with EventRexmit.
	Payload Segment
	// Remote is the destination of a UDP datagram
	Remote netip.AddrPort

	// Stop closes the receive window until Restart
	Stop bool
	// Restart reopens a window closed with Stop
	Restart bool
	// Close starts an orderly shutdown
	Close bool
	// Abort resets the connection
	Abort bool
	// Reject refuses the current inbound data, which the peer will have to send again
	Reject bool
}

// ConnStatus is the engine's view of a TCP connection
type ConnStatus uint8

const (
	StatusClosed ConnStatus = iota
	StatusConnecting
	StatusEstablished
	StatusClosing
)

var connStatusMapping = map[ConnStatus]string{
	StatusClosed:      "StatusClosed",
	StatusConnecting:  "StatusConnecting",
	StatusEstablished: "StatusEstablished",
	StatusClosing:     "StatusClosing",
}

func (s ConnStatus) String() string {
	return connStatusMapping[s]
}

// Output is a frame produced by the protocol engine: header bytes built in the engine's scratch space,
// followed by an optional payload segment that is still in the packet buffer
type Output struct {
	Header  []byte
	Payload Segment
}

// Application receives connection events from the protocol engine. Stack implements it.
type Application interface {
	TCPCall(event Event) Intent
	UDPCall(event Event) Intent
}

// Engine is the TCP/IP protocol engine: it parses headers, runs the TCP state machines and builds the
// headers of outgoing frames. It never touches payload bytes itself. Every method that can call back into
// the Application does so synchronously.
type Engine interface {
	// Input processes one received frame. header holds the leading bytes of the frame; the complete frame
	// is in the packet buffer as frame. A frame to send in response is returned with true.
	Input(frame Segment, header []byte, app Application) (Output, bool)
	// Periodic runs the engine's timers, calling app for every connection and emit for every frame
	// that results
	Periodic(app Application, emit func(Output))
	// Poll gives a TCP connection the opportunity to send immediately
	Poll(conn ConnID, app Application) (Output, bool)
	// UDPPoll gives a UDP connection the opportunity to send immediately
	UDPPoll(conn ConnID, app Application) (Output, bool)

	// Connect starts an active open
	Connect(remote netip.AddrPort) (ConnID, error)
	Listen(port uint16)
	Unlisten(port uint16)
	Status(conn ConnID) ConnStatus
	// Abort drops a connection without notifying the Application
	Abort(conn ConnID)

	UDPNew(localPort uint16) (ConnID, error)
	UDPRemove(conn ConnID)
}
