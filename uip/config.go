package uip

import (
	"time"

	"github.com/pkg/errors"
	"github.com/uipnet/uipethernet/memutils/metadata"
)

// CreateFlags indicate specific stack behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that this stack and the sockets created from it will not be
	// synchronized internally. The consumer must guarantee they are used from only one goroutine at a
	// time or are synchronized by some other mechanism.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	return flagsToString(f, createFlagsMapping)
}

// WriteAttemptsForever makes a write that cannot get buffer space keep ticking the stack until it can,
// or until the connection closes
const WriteAttemptsForever = -1

const (
	defaultSegmentSize       = 400
	defaultNumPackets        = 3
	defaultMaxConnections    = 4
	defaultMaxUDPConnections = 4
	defaultUDPPacketSize     = 512
	defaultPeriodicInterval  = 250 * time.Millisecond
	defaultClientTimer       = 10 * time.Millisecond
	defaultScratchSize       = 98
)

// CreateOptions contains optional settings when creating a Stack. Zero fields are replaced with defaults.
type CreateOptions struct {
	// Flags indicates specific stack behaviors to activate or deactivate
	Flags CreateFlags

	// SegmentSize is the size of the blocks outbound TCP data is written into
	SegmentSize int
	// NumPackets is the number of inbound and of outbound segments a connection may hold, and the number
	// of inbound datagrams a UDP socket may hold
	NumPackets int
	// MaxConnections is the number of TCP connection records. Records of connections closed by the
	// peer with unread data still occupy a slot until the data is read or discarded.
	MaxConnections int
	// MaxClosedConnections bounds how many records of connections closed by the peer are kept for their
	// unread data. Beyond it, unread data of a closing connection is discarded. Defaults to
	// MaxConnections.
	MaxClosedConnections int
	// MaxUDPConnections is the number of UDP sockets
	MaxUDPConnections int
	// UDPPacketSize is the largest datagram a UDP socket can build
	UDPPacketSize int

	// WriteAttempts decides what a write does when it runs out of buffer space. Zero returns a short
	// count immediately, N ticks the stack and tries again up to N times, and WriteAttemptsForever
	// keeps trying.
	WriteAttempts int
	// ConnectTimeout bounds Client.Connect. With zero, only the engine's own retransmission limits apply.
	ConnectTimeout time.Duration
	// PeriodicInterval is how often the engine's timers run
	PeriodicInterval time.Duration
	// ClientTimer is how long written data may wait before the connection is polled for it, instead of
	// waiting for the next periodic run
	ClientTimer time.Duration

	// ScratchSize is the number of leading bytes of each frame read into host memory for the engine
	// to parse headers from
	ScratchSize int
	// Clock is used for timers and timeouts. Defaults to time.Now.
	Clock func() time.Time
}

func (o *CreateOptions) applyDefaults() error {
	if o.SegmentSize == 0 {
		o.SegmentSize = defaultSegmentSize
	}
	if o.NumPackets == 0 {
		o.NumPackets = defaultNumPackets
	}
	if o.MaxConnections == 0 {
		o.MaxConnections = defaultMaxConnections
	}
	if o.MaxClosedConnections == 0 {
		o.MaxClosedConnections = o.MaxConnections
	}
	if o.MaxUDPConnections == 0 {
		o.MaxUDPConnections = defaultMaxUDPConnections
	}
	if o.UDPPacketSize == 0 {
		o.UDPPacketSize = defaultUDPPacketSize
	}
	if o.PeriodicInterval == 0 {
		o.PeriodicInterval = defaultPeriodicInterval
	}
	if o.ClientTimer == 0 {
		o.ClientTimer = defaultClientTimer
	}
	if o.ScratchSize == 0 {
		o.ScratchSize = defaultScratchSize
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}

	if o.SegmentSize < 0 || o.NumPackets < 0 || o.MaxConnections < 0 || o.MaxClosedConnections < 0 || o.MaxUDPConnections < 0 || o.UDPPacketSize < 0 {
		return errors.New("buffer sizes and counts must not be negative")
	}

	if o.WriteAttempts < WriteAttemptsForever {
		return errors.Errorf("write attempts must be at least %d, received %d", WriteAttemptsForever, o.WriteAttempts)
	}

	if o.NumPackets*(o.MaxConnections*2+o.MaxUDPConnections) > metadata.MaxBlockCount {
		return errors.Errorf("%d segments per connection across %d TCP and %d UDP connections exceeds the %d block handles",
			o.NumPackets, o.MaxConnections, o.MaxUDPConnections, metadata.MaxBlockCount)
	}

	return nil
}
