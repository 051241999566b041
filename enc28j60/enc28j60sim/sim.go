// Package enc28j60sim is an in-memory model of the ENC28J60 controller that implements enc28j60.Bus. It
// models the parts of the chip the driver depends on: register banks, buffer memory with the receive ring
// wrap, the receive packet counter, the DMA engine, transmission with the status vector, and the MII
// interface to the PHY. Frames are delivered with InjectFrame and collected from Sent.
package enc28j60sim

import (
	"encoding/binary"

	"github.com/uipnet/uipethernet/enc28j60"
)

const (
	commonBase  = enc28j60.EIE & enc28j60.ADDR_MASK
	tsvSize     = 7
	headerSize  = 6
	crcSize     = 4
	addressMask = enc28j60.MEMORY_SIZE - 1
)

// Sent is a frame the chip transmitted
type Sent struct {
	// Control is the per-packet control byte that preceded the frame
	Control byte
	// Frame holds the bytes between the control byte and ETXND inclusive
	Frame []byte
}

// Chip is a simulated ENC28J60. The zero value is not usable; create one with New.
type Chip struct {
	// Memory is the 8 KiB buffer memory
	Memory [enc28j60.MEMORY_SIZE]byte

	// DMALatency is the number of ECON1 reads a DMA copy stays busy for. With zero, copies complete as soon
	// as they are started.
	DMALatency int
	// Link is reported through PHSTAT2
	Link bool
	// Revision is reported through EREVID
	Revision uint8

	// Violations counts buffer memory accesses made while a DMA copy was running
	Violations int
	// Sent records every transmitted frame
	Sent []Sent
	// Dropped counts frames InjectFrame could not place in the receive ring
	Dropped int
	// Resets counts soft resets
	Resets int

	regs   [4][commonBase]byte
	common [enc28j60.ADDR_MASK + 1 - commonBase]byte
	phy    [32]uint16

	rxWrite      int
	dmaRemaining int
	txErrors     int
}

var _ enc28j60.Bus = (*Chip)(nil)

// New creates a simulated chip with a link and silicon revision B7
func New() *Chip {
	c := &Chip{
		Link:     true,
		Revision: 6,
	}
	c.reset()
	return c
}

func (c *Chip) reset() {
	c.regs = [4][commonBase]byte{}
	c.common = [len(c.common)]byte{}
	c.phy = [32]uint16{}
	c.phy[enc28j60.PHHID1] = 0x0083
	c.phy[enc28j60.PHHID2] = 0x1400
	c.rxWrite = 0
	c.dmaRemaining = 0
}

// InjectTransmitErrors makes the next count transmissions fail with TXERIF and a stuck TXRTS, the way
// Rev. B silicon does after a late collision
func (c *Chip) InjectTransmitErrors(count int) {
	c.txErrors = count
}

// DMABusy reports whether a DMA copy is in progress
func (c *Chip) DMABusy() bool {
	return c.dmaRemaining > 0
}

// PacketCount returns EPKTCNT
func (c *Chip) PacketCount() int {
	return int(c.regs[1][enc28j60.EPKTCNT&enc28j60.ADDR_MASK])
}

func (c *Chip) bank() int {
	return int(c.common[enc28j60.ECON1-commonBase] & (enc28j60.ECON1_BSEL1 | enc28j60.ECON1_BSEL0))
}

func (c *Chip) reg(addr uint8) *byte {
	a := addr & enc28j60.ADDR_MASK
	if a >= commonBase {
		return &c.common[a-commonBase]
	}
	return &c.regs[c.bank()][a]
}

// Register returns the value of a register, selecting its bank directly
func (c *Chip) Register(addr uint8) uint8 {
	a := addr & enc28j60.ADDR_MASK
	if a >= commonBase {
		return c.common[a-commonBase]
	}
	return c.regs[(addr&enc28j60.BANK_MASK)>>5][a]
}

// RegisterPair returns the 16-bit value of a low/high register pair
func (c *Chip) RegisterPair(addrL uint8) int {
	return int(c.Register(addrL)) | int(c.Register(addrL+1))<<8
}

func (c *Chip) setRegisterPair(addrL uint8, value int) {
	bank := (addrL & enc28j60.BANK_MASK) >> 5
	a := addrL & enc28j60.ADDR_MASK
	c.regs[bank][a] = uint8(value)
	c.regs[bank][a+1] = uint8(value >> 8)
}

// Phy returns the value of a PHY register
func (c *Chip) Phy(addr uint8) uint16 {
	if addr == enc28j60.PHSTAT2 {
		if c.Link {
			return enc28j60.PHSTAT2_LSTAT
		}
		return 0
	}
	return c.phy[addr&0x1F]
}

func (c *Chip) ReadOp(op uint8, addr uint8) uint8 {
	if op != enc28j60.READ_CTRL_REG {
		return 0
	}

	a := addr & enc28j60.ADDR_MASK
	switch {
	case a == enc28j60.ECON1:
		c.stepDMA()
	case a == enc28j60.ESTAT:
		return *c.reg(addr) | enc28j60.ESTAT_CLKRDY
	case c.bank() == 3 && a == enc28j60.EREVID&enc28j60.ADDR_MASK:
		return c.Revision
	case c.bank() == 3 && a == enc28j60.MISTAT&enc28j60.ADDR_MASK:
		return 0
	}

	return *c.reg(addr)
}

func (c *Chip) WriteOp(op uint8, addr uint8, data uint8) {
	switch op {
	case enc28j60.SOFT_RESET:
		c.Resets++
		c.reset()
	case enc28j60.WRITE_CTRL_REG:
		c.write(addr, data)
	case enc28j60.BIT_FIELD_SET:
		c.write(addr, *c.reg(addr)|data)
	case enc28j60.BIT_FIELD_CLR:
		c.write(addr, *c.reg(addr)&^data)
	}
}

func (c *Chip) write(addr uint8, data uint8) {
	a := addr & enc28j60.ADDR_MASK
	r := c.reg(addr)
	old := *r

	switch {
	case a == enc28j60.ECON1:
		c.writeECON1(old, data)
		return
	case a == enc28j60.ECON2:
		if data&enc28j60.ECON2_PKTDEC != 0 {
			cnt := &c.regs[1][enc28j60.EPKTCNT&enc28j60.ADDR_MASK]
			if *cnt > 0 {
				*cnt--
			}
			if *cnt == 0 {
				c.common[enc28j60.EIR-commonBase] &^= enc28j60.EIR_PKTIF
			}
		}
		*r = data &^ enc28j60.ECON2_PKTDEC
		return
	}

	*r = data

	switch c.bank() {
	case 2:
		switch a {
		case enc28j60.MICMD & enc28j60.ADDR_MASK:
			if data&enc28j60.MICMD_MIIRD != 0 {
				value := c.Phy(c.regs[2][enc28j60.MIREGADR&enc28j60.ADDR_MASK])
				c.regs[2][enc28j60.MIRDL&enc28j60.ADDR_MASK] = uint8(value)
				c.regs[2][enc28j60.MIRDH&enc28j60.ADDR_MASK] = uint8(value >> 8)
			}
		case enc28j60.MIWRH & enc28j60.ADDR_MASK:
			phyAddr := c.regs[2][enc28j60.MIREGADR&enc28j60.ADDR_MASK] & 0x1F
			c.phy[phyAddr] = uint16(c.regs[2][enc28j60.MIWRL&enc28j60.ADDR_MASK]) | uint16(data)<<8
		}
	}
}

func (c *Chip) writeECON1(old uint8, data uint8) {
	r := &c.common[enc28j60.ECON1-commonBase]

	if data&enc28j60.ECON1_RXRST != 0 {
		c.rxWrite = c.RegisterPair(enc28j60.ERXSTL)
		c.setRegisterPair(enc28j60.ERXWRPTL, c.rxWrite)
	}

	if old&enc28j60.ECON1_DMAST != 0 && data&enc28j60.ECON1_DMAST == 0 && c.dmaRemaining > 0 {
		// aborted
		c.dmaRemaining = 0
	}

	*r = data

	if old&enc28j60.ECON1_RXEN == 0 && data&enc28j60.ECON1_RXEN != 0 && c.rxWrite == 0 {
		c.rxWrite = c.RegisterPair(enc28j60.ERXSTL)
		c.setRegisterPair(enc28j60.ERXWRPTL, c.rxWrite)
	}

	if old&enc28j60.ECON1_DMAST == 0 && data&enc28j60.ECON1_DMAST != 0 {
		c.startDMA()
	}

	if old&enc28j60.ECON1_TXRTS == 0 && data&enc28j60.ECON1_TXRTS != 0 && data&enc28j60.ECON1_TXRST == 0 {
		c.transmit()
	}
}

func (c *Chip) ringBounds() (int, int) {
	return c.RegisterPair(enc28j60.ERXSTL), c.RegisterPair(enc28j60.ERXNDL)
}

func (c *Chip) nextReadAddress(addr int) int {
	start, end := c.ringBounds()
	if addr == end {
		return start
	}
	return (addr + 1) & addressMask
}

func (c *Chip) startDMA() {
	if c.DMALatency == 0 {
		c.finishDMA()
		return
	}
	c.dmaRemaining = c.DMALatency
}

func (c *Chip) stepDMA() {
	if c.dmaRemaining == 0 {
		return
	}
	c.dmaRemaining--
	if c.dmaRemaining == 0 {
		c.finishDMA()
	}
}

func (c *Chip) finishDMA() {
	src := c.RegisterPair(enc28j60.EDMASTL)
	end := c.RegisterPair(enc28j60.EDMANDL)
	dst := c.RegisterPair(enc28j60.EDMADSTL)

	for {
		c.Memory[dst] = c.Memory[src]
		if src == end {
			break
		}
		src = c.nextReadAddress(src)
		dst = (dst + 1) & addressMask
	}

	c.common[enc28j60.ECON1-commonBase] &^= enc28j60.ECON1_DMAST
	c.common[enc28j60.EIR-commonBase] |= enc28j60.EIR_DMAIF
}

func (c *Chip) transmit() {
	if c.txErrors > 0 {
		c.txErrors--
		c.common[enc28j60.EIR-commonBase] |= enc28j60.EIR_TXERIF
		return
	}

	start := c.RegisterPair(enc28j60.ETXSTL)
	end := c.RegisterPair(enc28j60.ETXNDL)

	sent := Sent{Control: c.Memory[start]}
	if end > start {
		sent.Frame = append([]byte(nil), c.Memory[start+1:end+1]...)
	}
	c.Sent = append(c.Sent, sent)

	for i := 1; i <= tsvSize; i++ {
		c.Memory[(end+i)&addressMask] = 0xA5
	}

	c.common[enc28j60.ECON1-commonBase] &^= enc28j60.ECON1_TXRTS
	c.common[enc28j60.EIR-commonBase] |= enc28j60.EIR_TXIF
}

func (c *Chip) ReadBuffer(buf []byte) {
	if c.dmaRemaining > 0 {
		c.Violations++
	}

	ptr := c.RegisterPair(enc28j60.ERDPTL)
	for i := range buf {
		buf[i] = c.Memory[ptr]
		ptr = c.nextReadAddress(ptr)
	}
	c.setRegisterPair(enc28j60.ERDPTL, ptr)
}

func (c *Chip) WriteBuffer(buf []byte) {
	if c.dmaRemaining > 0 {
		c.Violations++
	}

	ptr := c.RegisterPair(enc28j60.EWRPTL)
	for _, b := range buf {
		c.Memory[ptr] = b
		ptr = (ptr + 1) & addressMask
	}
	c.setRegisterPair(enc28j60.EWRPTL, ptr)
}

// InjectFrame places a received frame in the receive ring the way the chip's receive logic does: a six
// byte header, the frame, and a four byte CRC, with the next packet aligned to an even address. good sets
// the "received OK" bit of the status vector. It returns false when reception is disabled or the ring
// does not have room.
func (c *Chip) InjectFrame(frame []byte, good bool) bool {
	if c.Register(enc28j60.ECON1)&enc28j60.ECON1_RXEN == 0 || c.PacketCount() == 0xFF {
		c.Dropped++
		return false
	}

	start, end := c.ringBounds()
	ring := enc28j60.Ring{Low: start, High: end + 1}

	next := ring.Add(c.rxWrite, headerSize+len(frame)+crcSize)
	if next%2 == 1 {
		next = ring.Add(next, 1)
	}

	readPtr := c.RegisterPair(enc28j60.ERXRDPTL)
	free := ring.Distance(c.rxWrite, readPtr)
	if ring.Distance(c.rxWrite, next) > free || len(frame)+headerSize+crcSize >= ring.Size() {
		c.Dropped++
		c.common[enc28j60.EIR-commonBase] |= enc28j60.EIR_RXERIF
		return false
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint16(header[0:2], uint16(next))
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(frame)+crcSize))
	if good {
		header[4] = enc28j60.RSV_RXOK
	}

	ptr := c.rxWrite
	put := func(data []byte) {
		for _, b := range data {
			c.Memory[ptr] = b
			ptr = ring.Add(ptr, 1)
		}
	}
	put(header[:])
	put(frame)
	put([]byte{0xDE, 0xAD, 0xBE, 0xEF})

	c.rxWrite = next
	c.setRegisterPair(enc28j60.ERXWRPTL, next)
	c.regs[1][enc28j60.EPKTCNT&enc28j60.ADDR_MASK]++
	c.common[enc28j60.EIR-commonBase] |= enc28j60.EIR_PKTIF

	return true
}
