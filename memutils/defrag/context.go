package defrag

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// CompactionContext is the core of the compaction logic for memutils. It walks an address-ordered
// BlockChain and slides live blocks toward the start of the arena so that scattered gaps merge into one.
// Each run consists of one or more passes: CollectMoves gathers a pass's worth of moves within the
// PassContext budget and CompletePass executes them through Handler.
type CompactionContext[T comparable] struct {
	// Algorithm is the compaction algorithm that should be used
	Algorithm Algorithm
	// Handler is a method that will be called to physically relocate each block as part of CompletePass
	Handler MoveHandler[T]
	// Chain is the block chain this context exists to compact
	Chain BlockChain[T]

	moves []DefragmentationMove[T]
}

// Init sets up this CompactionContext to be used in a fresh compaction run. CompactionContext can
// be reused for multiple runs, as long as this method is called prior to beginning each run, including the first
func (c *CompactionContext[T]) Init() error {
	if c.Chain == nil {
		panic("attempted to init compaction context without a block chain")
	}

	if c.Handler == nil {
		return errors.New("attempted to init compaction context without a move handler")
	}

	if c.Algorithm == 0 {
		c.Algorithm = AlgorithmFull
	}

	c.moves = c.moves[:0]
	return nil
}

// Moves returns the moves gathered by the most recent call to CollectMoves that have not yet
// been completed
func (c *CompactionContext[T]) Moves() []DefragmentationMove[T] {
	return c.moves
}

// CollectMoves will retrieve a single pass's worth of DefragmentationMove operations to be completed.
// Destinations are computed as if every earlier move in the pass has already been applied, so the moves
// must be completed in order. It returns true if no further passes are required after this one.
func (c *CompactionContext[T]) CollectMoves(pass *PassContext) bool {
	switch c.Algorithm {
	case AlgorithmFast, AlgorithmFull:
	default:
		panic(fmt.Sprintf("attempted to compact with unknown algorithm: %s", c.Algorithm.String()))
	}

	head := c.Chain.ChainHead()
	begin, size := c.Chain.ChainExtent(head)
	cursor := begin + size

	for handle, ok := c.Chain.NextInChain(head); ok; handle, ok = c.Chain.NextInChain(handle) {
		begin, size = c.Chain.ChainExtent(handle)
		if begin == cursor {
			cursor += size
			continue
		}

		if c.Algorithm == AlgorithmFast && pass.TargetGap > 0 && begin-cursor >= pass.TargetGap {
			return true
		}

		switch pass.checkCounters(size) {
		case defragCounterIgnore:
			// The block stays put, so the next one can only slide down to its end
			cursor = begin + size
			continue
		case defragCounterEnd:
			return false
		}

		c.moves = append(c.moves, DefragmentationMove[T]{
			Handle:    handle,
			SrcOffset: begin,
			DstOffset: cursor,
			Size:      size,
		})
		spent := pass.incrementCounters(size, begin-cursor)
		cursor += size

		if spent {
			return false
		}
	}

	return true
}

// CompletePass executes the moves gathered by CollectMoves in order, calling Handler for each and then
// relocating the block within the chain. If Handler fails, the failing block and every block after it
// are left where they were, their moves are removed from the pass statistics, and the error is returned.
func (c *CompactionContext[T]) CompletePass(pass *PassContext) error {
	defer func() {
		c.moves = c.moves[:0]
	}()

	for i, move := range c.moves {
		err := c.Handler(move)
		if err != nil {
			for _, skipped := range c.moves[i:] {
				pass.Stats.BytesMoved -= skipped.Size
				pass.Stats.AllocationsMoved--
				pass.Stats.GapBytesClosed -= skipped.SrcOffset - skipped.DstOffset
			}
			return cerrors.Wrapf(err, "relocating %d bytes from %d to %d", move.Size, move.SrcOffset, move.DstOffset)
		}

		c.Chain.Relocate(move.Handle, move.DstOffset)
	}

	if len(c.moves) > 0 {
		pass.Stats.Passes++
	}

	return nil
}

// Run performs passes with the budget in pass until the run is complete or a pass makes no progress,
// and returns the statistics accumulated across every pass
func (c *CompactionContext[T]) Run(pass PassContext) (DefragmentationStats, error) {
	var total DefragmentationStats

	for {
		current := pass
		current.Stats = DefragmentationStats{}
		current.ignoredAllocs = 0

		complete := c.CollectMoves(&current)
		moved := len(c.moves)

		err := c.CompletePass(&current)
		total.Add(current.Stats)
		if err != nil {
			return total, err
		}

		if complete || moved == 0 {
			return total, nil
		}
	}
}
