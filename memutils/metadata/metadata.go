package metadata

// BlockStore represents an arena of memory carved into variable-length blocks that are referenced by
// handle. Pool implements it directly, and packet drivers that wrap a Pool implement it to add their
// own bookkeeping for handles that alias memory outside of the pool.
type BlockStore interface {
	// AllocBlock reserves size bytes and returns the handle of the new block. NoBlock is returned when
	// the request cannot be satisfied, either because every descriptor slot is in use or because no gap
	// is large enough even after compaction. This is the normal backpressure signal, and callers should
	// try again later rather than treating it as a failure.
	AllocBlock(size int) BlockHandle
	// FreeBlock releases a block. The bytes it covered become part of the gap between its neighbors.
	//
	// An error is returned if the handle does not refer to a live block, and the store is left unchanged.
	FreeBlock(handle BlockHandle) error
	// ResizeBlock drops offset bytes from the front of a block, so that a block can be consumed in pieces
	// without moving memory. The offset may not be negative or exceed the block's size.
	ResizeBlock(handle BlockHandle, offset int) error
	// TruncateBlock advances the start of a block by offset bytes and then sets its size. The resulting
	// window must lie within the block's current window: blocks never grow.
	TruncateBlock(handle BlockHandle, offset int, size int) error
	// BlockSize returns the size in bytes of a live block, or 0 if the handle does not refer to one
	BlockSize(handle BlockHandle) int
}

var _ BlockStore = (*Pool)(nil)
