package uip

import (
	"github.com/uipnet/uipethernet/memutils/metadata"
	"golang.org/x/exp/constraints"
)

// PacketBuffer is the packet storage a Stack runs on. enc28j60.Network implements it.
type PacketBuffer interface {
	metadata.BlockStore

	// ReceivePacket returns the handle of the next received frame, or NoBlock
	ReceivePacket() metadata.BlockHandle
	SendPacket(handle metadata.BlockHandle) error

	ReadPacket(handle metadata.BlockHandle, pos int, buf []byte) int
	WritePacket(handle metadata.BlockHandle, pos int, buf []byte) int
	CopyPacket(dest metadata.BlockHandle, destPos int, src metadata.BlockHandle, srcPos int, length int) (int, error)
}

// handleRing is a fixed-capacity FIFO of block handles
type handleRing[H constraints.Unsigned] struct {
	slots []H
	start int
	count int
}

func newHandleRing[H constraints.Unsigned](capacity int) handleRing[H] {
	return handleRing[H]{slots: make([]H, capacity)}
}

func (r *handleRing[H]) Len() int {
	return r.count
}

func (r *handleRing[H]) Empty() bool {
	return r.count == 0
}

func (r *handleRing[H]) Full() bool {
	return r.count == len(r.slots)
}

// At returns the i'th handle counting from the oldest
func (r *handleRing[H]) At(i int) H {
	return r.slots[(r.start+i)%len(r.slots)]
}

func (r *handleRing[H]) Front() (H, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.slots[r.start], true
}

func (r *handleRing[H]) Back() (H, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.At(r.count - 1), true
}

func (r *handleRing[H]) Push(handle H) bool {
	if r.Full() {
		return false
	}

	r.slots[(r.start+r.count)%len(r.slots)] = handle
	r.count++
	return true
}

func (r *handleRing[H]) PopFront() (H, bool) {
	if r.count == 0 {
		return 0, false
	}

	handle := r.slots[r.start]
	r.slots[r.start] = 0
	r.start = (r.start + 1) % len(r.slots)
	r.count--
	return handle, true
}
