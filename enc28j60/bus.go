package enc28j60

import (
	cerrors "github.com/cockroachdb/errors"
	"tinygo.org/x/drivers"
)

// Bus is the raw register interface of the chip: the five SPI instructions the controller understands.
// addr is a full register address as defined in this package; implementations use only its low five
// bits on the wire, plus the MAC/MII flag to decide whether a read returns a dummy byte first. Bank
// selection is the caller's responsibility.
type Bus interface {
	ReadOp(op uint8, addr uint8) uint8
	WriteOp(op uint8, addr uint8, data uint8)
	// ReadBuffer reads len(buf) bytes of buffer memory starting at ERDPT
	ReadBuffer(buf []byte)
	// WriteBuffer writes buf to buffer memory starting at EWRPT
	WriteBuffer(buf []byte)
}

// Pin is a chip-select line. machine.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

// SPIBus implements Bus over a tinygo SPI peripheral. Bus methods cannot report failures, so the first
// transfer error is latched and returned by Err.
type SPIBus struct {
	spi drivers.SPI
	cs  Pin
	err error
}

var _ Bus = (*SPIBus)(nil)

// NewSPIBus creates a Bus that talks to the chip over spi, framing every instruction with cs
func NewSPIBus(spi drivers.SPI, cs Pin) *SPIBus {
	cs.High()
	return &SPIBus{spi: spi, cs: cs}
}

// Err returns the first transfer error seen by the bus, if any
func (b *SPIBus) Err() error {
	return b.err
}

func (b *SPIBus) transfer(out byte) byte {
	in, err := b.spi.Transfer(out)
	if err != nil && b.err == nil {
		b.err = cerrors.Wrapf(err, "spi transfer of 0x%02x", out)
	}
	return in
}

func (b *SPIBus) ReadOp(op uint8, addr uint8) uint8 {
	b.cs.Low()
	defer b.cs.High()

	b.transfer(op | (addr & ADDR_MASK))
	if addr&SPRD_MASK != 0 {
		// MAC and MII registers shift out a dummy byte first
		b.transfer(0)
	}
	return b.transfer(0)
}

func (b *SPIBus) WriteOp(op uint8, addr uint8, data uint8) {
	b.cs.Low()
	defer b.cs.High()

	b.transfer(op | (addr & ADDR_MASK))
	b.transfer(data)
}

func (b *SPIBus) ReadBuffer(buf []byte) {
	b.cs.Low()
	defer b.cs.High()

	b.transfer(READ_BUF_MEM)
	if err := b.spi.Tx(nil, buf); err != nil && b.err == nil {
		b.err = cerrors.Wrapf(err, "reading %d bytes of buffer memory", len(buf))
	}
}

func (b *SPIBus) WriteBuffer(buf []byte) {
	b.cs.Low()
	defer b.cs.High()

	b.transfer(WRITE_BUF_MEM)
	if err := b.spi.Tx(buf, nil); err != nil && b.err == nil {
		b.err = cerrors.Wrapf(err, "writing %d bytes of buffer memory", len(buf))
	}
}
