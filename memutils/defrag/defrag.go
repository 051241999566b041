package defrag

// Algorithm identifies which compaction algorithm will be used for compaction passes
type Algorithm uint32

const (
	// AlgorithmFast indicates that a compaction run should stop sliding blocks as soon as the gap in front
	// of the next block reaches PassContext.TargetGap bytes. This performs the fewest moves necessary to satisfy
	// a single pending allocation, but leaves the remaining free space fragmented.
	AlgorithmFast Algorithm = iota + 1
	// AlgorithmFull indicates that a compaction run should slide every live block toward the start of the
	// arena, so that all free space ends up as a single gap after the last block.
	//
	// This is the default algorithm if none is specified.
	AlgorithmFull
)

var algorithmMapping = map[Algorithm]string{
	AlgorithmFast: "AlgorithmFast",
	AlgorithmFull: "AlgorithmFull",
}

func (a Algorithm) String() string {
	return algorithmMapping[a]
}

// DefragmentationStats contains basic metrics for compaction over time
type DefragmentationStats struct {
	// BytesMoved is the number of bytes that have been successfully relocated
	BytesMoved int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// GapBytesClosed is the sum of the distances blocks were slid. Because every slide closes the
	// gap in front of the block, this is also the number of bytes added to the gaps further down the chain
	GapBytesClosed int
	// Passes is the number of compaction passes that relocated at least one block
	Passes int
}

func (s *DefragmentationStats) Add(stats DefragmentationStats) {
	s.BytesMoved += stats.BytesMoved
	s.AllocationsMoved += stats.AllocationsMoved
	s.GapBytesClosed += stats.GapBytesClosed
	s.Passes += stats.Passes
}

// DefragmentationMove describes a single slide of a block toward the start of the arena. Moves are
// always downward (DstOffset < SrcOffset), so a forward byte-by-byte copy is safe even when the source
// and destination ranges overlap.
type DefragmentationMove[T any] struct {
	Handle    T
	SrcOffset int
	DstOffset int
	Size      int
}

// MoveHandler physically relocates the bytes described by a DefragmentationMove. It is called once per
// move, in chain order, by CompactionContext.CompletePass.
type MoveHandler[T any] func(move DefragmentationMove[T]) error

// BlockChain is the view of an address-ordered block chain that compaction operates on
type BlockChain[T comparable] interface {
	// ChainHead returns the sentinel that anchors the chain. The sentinel never moves.
	ChainHead() T
	// NextInChain returns the block after handle in ascending address order, or false at the tail
	NextInChain(handle T) (T, bool)
	// ChainExtent returns the current address range of a block in the chain
	ChainExtent(handle T) (begin int, size int)
	// Relocate records that the bytes of handle now begin at begin
	Relocate(handle T, begin int)
}
