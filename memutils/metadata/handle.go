package metadata

// BlockHandle identifies a block within a Pool. It indexes the pool's descriptor table rather than
// addressing memory, so it stays valid while compaction relocates the block's bytes.
type BlockHandle uint8

const (
	// NoBlock is returned when an allocation could not be satisfied. It is also the handle of the
	// sentinel that anchors the block chain, which is never handed out.
	NoBlock BlockHandle = 0
	// MaxBlockCount is the largest descriptor table a Pool will accept. The top of the handle range
	// is left for consumers that alias memory outside of the pool behind a reserved handle.
	MaxBlockCount = 254
)

// memblock is a block descriptor. Descriptors with live set form a singly linked chain in ascending
// address order starting at the sentinel; free space is implicit in the gaps between them.
type memblock struct {
	begin int
	size  int
	next  BlockHandle
	live  bool
}

// BlockMover physically relocates bytes within the arena during compaction. Moves are always toward
// lower addresses, so a forward copy is safe when the ranges overlap.
type BlockMover interface {
	MoveBlock(dst int, src int, size int) error
}

// BlockMoverFunc adapts an ordinary function to the BlockMover interface
type BlockMoverFunc func(dst int, src int, size int) error

func (f BlockMoverFunc) MoveBlock(dst int, src int, size int) error {
	return f(dst, src, size)
}
