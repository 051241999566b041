package enc28j60

import "github.com/pkg/errors"

var (
	// ErrDMATimeout is returned when the DMA engine is still busy after the configured number of polls
	ErrDMATimeout = errors.New("enc28j60: DMA did not complete")
	// ErrTransmit is returned when a frame could not be sent after recovering from transmit errors
	ErrTransmit = errors.New("enc28j60: transmit failed")
	// ErrReceiveBufferReadOnly is returned when a write or send targets the receive ring alias
	ErrReceiveBufferReadOnly = errors.New("enc28j60: receive buffer is read-only")
	// ErrUnreleasedBlocks is returned from Destroy when blocks are still allocated
	ErrUnreleasedBlocks = errors.New("enc28j60: blocks still allocated")
	// ErrPHYTimeout is returned when the MII management interface stays busy
	ErrPHYTimeout = errors.New("enc28j60: PHY access timed out")
)
