package enc28j60

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// moveBlock is the pool's BlockMover. Pool blocks never lie inside the receive ring.
func (n *Network) moveBlock(dst int, src int, size int) error {
	n.logger.Debug("Network::moveBlock", slog.Int("Dst", dst), slog.Int("Src", src), slog.Int("Size", size))
	return n.memoryMove(dst, src, size, false)
}

// memoryMove starts a DMA copy of length bytes from src to dst. When srcInRing is set the source follows
// the receive ring around its end. The copy runs in the background; checkDMA waits for it.
func (n *Network) memoryMove(dst int, src int, length int, srcInRing bool) error {
	if err := n.checkDMA(); err != nil {
		return err
	}

	if length == 1 {
		n.chip.writeByte(dst, n.chip.readByte(src))
		return nil
	}

	end := src + length - 1
	if srcInRing {
		end = n.ring.Add(src, length-1)
	}

	n.chip.writeRegPair(EDMASTL, uint16(src))
	n.chip.writeRegPair(EDMADSTL, uint16(dst))
	n.chip.writeRegPair(EDMANDL, uint16(end))

	n.chip.clearBits(ECON1, ECON1_CSUMEN)
	n.chip.setBits(ECON1, ECON1_DMAST)
	n.dmaRunning = true

	return nil
}

// checkDMA waits for a DMA copy started by memoryMove to finish. Buffer memory must not be accessed
// over SPI while a copy is in progress.
func (n *Network) checkDMA() error {
	if !n.dmaRunning {
		return nil
	}

	n.dmaRunning = false
	if n.chip.waitClear(ECON1, ECON1_DMAST) {
		return nil
	}

	n.chip.clearBits(ECON1, ECON1_DMAST)
	return cerrors.Wrapf(ErrDMATimeout, "after %d polls", n.chip.pollLimit)
}
