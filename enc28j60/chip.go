package enc28j60

import (
	"time"

	cerrors "github.com/cockroachdb/errors"
)

// chip wraps a Bus with bank tracking and the multi-byte register and PHY accessors every higher level
// operation is built from
type chip struct {
	bus       Bus
	bank      uint8
	pollLimit int
	sleep     func(time.Duration)
}

func (c *chip) setBank(addr uint8) {
	if addr&ADDR_MASK >= EIE {
		return
	}

	bank := addr & BANK_MASK
	if bank != c.bank {
		c.bus.WriteOp(BIT_FIELD_CLR, ECON1, ECON1_BSEL1|ECON1_BSEL0)
		c.bus.WriteOp(BIT_FIELD_SET, ECON1, bank>>5)
		c.bank = bank
	}
}

func (c *chip) readReg(addr uint8) uint8 {
	c.setBank(addr)
	return c.bus.ReadOp(READ_CTRL_REG, addr)
}

func (c *chip) writeReg(addr uint8, data uint8) {
	c.setBank(addr)
	c.bus.WriteOp(WRITE_CTRL_REG, addr, data)
}

func (c *chip) readRegPair(addrL uint8) uint16 {
	c.setBank(addrL)
	low := c.bus.ReadOp(READ_CTRL_REG, addrL)
	high := c.bus.ReadOp(READ_CTRL_REG, addrL+1)
	return uint16(low) | uint16(high)<<8
}

func (c *chip) writeRegPair(addrL uint8, data uint16) {
	c.setBank(addrL)
	c.bus.WriteOp(WRITE_CTRL_REG, addrL, uint8(data))
	c.bus.WriteOp(WRITE_CTRL_REG, addrL+1, uint8(data>>8))
}

func (c *chip) setBits(addr uint8, mask uint8) {
	c.setBank(addr)
	c.bus.WriteOp(BIT_FIELD_SET, addr, mask)
}

func (c *chip) clearBits(addr uint8, mask uint8) {
	c.setBank(addr)
	c.bus.WriteOp(BIT_FIELD_CLR, addr, mask)
}

// waitClear polls addr until every bit in mask reads zero
func (c *chip) waitClear(addr uint8, mask uint8) bool {
	for i := 0; i < c.pollLimit; i++ {
		if c.readReg(addr)&mask == 0 {
			return true
		}
	}
	return false
}

func (c *chip) phyWrite(addr uint8, data uint16) error {
	c.writeReg(MIREGADR, addr)
	c.writeRegPair(MIWRL, data)

	if !c.waitClear(MISTAT, MISTAT_BUSY) {
		return cerrors.Wrapf(ErrPHYTimeout, "writing PHY register 0x%02x", addr)
	}
	return nil
}

func (c *chip) phyRead(addr uint8) (uint16, error) {
	c.writeReg(MIREGADR, addr)
	c.writeReg(MICMD, MICMD_MIIRD)

	if !c.waitClear(MISTAT, MISTAT_BUSY) {
		c.writeReg(MICMD, 0)
		return 0, cerrors.Wrapf(ErrPHYTimeout, "reading PHY register 0x%02x", addr)
	}

	c.writeReg(MICMD, 0)
	low := c.readReg(MIRDL)
	high := c.readReg(MIRDH)
	return uint16(low) | uint16(high)<<8, nil
}

func (c *chip) readBuffer(addr int, buf []byte) {
	c.writeRegPair(ERDPTL, uint16(addr))
	c.bus.ReadBuffer(buf)
}

func (c *chip) writeBuffer(addr int, buf []byte) {
	c.writeRegPair(EWRPTL, uint16(addr))
	c.bus.WriteBuffer(buf)
}

func (c *chip) readByte(addr int) byte {
	var b [1]byte
	c.readBuffer(addr, b[:])
	return b[0]
}

func (c *chip) writeByte(addr int, value byte) {
	b := [1]byte{value}
	c.writeBuffer(addr, b[:])
}
