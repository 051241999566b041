package metadata

import (
	"context"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/uipnet/uipethernet/memutils"
	"github.com/uipnet/uipethernet/memutils/defrag"
	"golang.org/x/exp/slog"
)

const (
	// defaultMaxBlocks is the number of descriptor slots a Pool is created with when
	// CreateOptions.MaxBlocks is left at zero
	defaultMaxBlocks int = 16
)

// CreateOptions contains optional settings when creating a Pool
type CreateOptions struct {
	// MaxBlocks is the number of blocks that may be live at once. It may not exceed MaxBlockCount.
	MaxBlocks int
	// Strategy selects how a gap is chosen for a new block
	Strategy AllocationStrategy
	// CompactionAlgorithm selects how much of the arena is compacted when an allocation does not fit
	// any gap
	CompactionAlgorithm defrag.Algorithm
}

// Pool is an allocator over the fixed address range [start, start+size). Live blocks are kept in a chain
// ordered by address, anchored at a zero-length sentinel at the start of the arena, so free space never
// has to be tracked: it is whatever lies between two neighbors in the chain. When no gap can hold a new
// block, the pool compacts the chain by sliding blocks toward the start of the arena through its BlockMover.
//
// Pool does not touch the arena's bytes itself. It only decides where blocks live.
type Pool struct {
	logger *slog.Logger

	start  int
	size   int
	blocks []memblock
	mover  BlockMover

	strategy   AllocationStrategy
	compaction defrag.CompactionContext[BlockHandle]

	allocCount      int
	allocBytes      int
	compactionStats defrag.DefragmentationStats
}

// NewPool creates a pool over the arena [start, start+size). mover is called to relocate bytes whenever
// the pool compacts.
//
// options - Optional parameters: it is valid to leave all the fields blank
func NewPool(logger *slog.Logger, start int, size int, mover BlockMover, options CreateOptions) (*Pool, error) {
	if size <= 0 {
		return nil, errors.Errorf("arena size must be positive, received %d", size)
	}

	if start < 0 {
		return nil, errors.Errorf("arena start must not be negative, received %d", start)
	}

	if mover == nil {
		return nil, errors.New("a pool requires a block mover")
	}

	if logger == nil {
		logger = slog.Default()
	}

	maxBlocks := options.MaxBlocks
	if maxBlocks == 0 {
		maxBlocks = defaultMaxBlocks
	}

	if maxBlocks < 0 || maxBlocks > MaxBlockCount {
		return nil, errors.Errorf("pools may hold between 1 and %d blocks, received %d", MaxBlockCount, maxBlocks)
	}

	strategy := options.Strategy
	if strategy == 0 {
		strategy = AllocationStrategyMinMemory
	}

	p := &Pool{
		logger:   logger,
		start:    start,
		size:     size,
		blocks:   make([]memblock, maxBlocks+1),
		mover:    mover,
		strategy: strategy,
	}
	p.blocks[NoBlock] = memblock{begin: start, live: true}

	p.compaction = defrag.CompactionContext[BlockHandle]{
		Algorithm: options.CompactionAlgorithm,
		Handler:   p.moveBlock,
		Chain:     p,
	}
	err := p.compaction.Init()
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Start returns the first address of the arena
func (p *Pool) Start() int {
	return p.start
}

// Size returns the size of the arena in bytes
func (p *Pool) Size() int {
	return p.size
}

// MaxBlocks returns the number of blocks that may be live at once
func (p *Pool) MaxBlocks() int {
	return len(p.blocks) - 1
}

// AllocationCount returns the number of live blocks
func (p *Pool) AllocationCount() int {
	return p.allocCount
}

// SumFreeSize returns the number of bytes not covered by a live block
func (p *Pool) SumFreeSize() int {
	return p.size - p.allocBytes
}

// IsEmpty will return true if this pool has no live blocks
func (p *Pool) IsEmpty() bool {
	return p.allocCount == 0
}

// CompactionStats returns the statistics accumulated by every compaction run since the pool was created
func (p *Pool) CompactionStats() defrag.DefragmentationStats {
	return p.compactionStats
}

func (p *Pool) checkHandle(handle BlockHandle) error {
	if handle == NoBlock || int(handle) >= len(p.blocks) {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "handle %d is outside of the pool's range 1-%d", handle, len(p.blocks)-1)
	}

	if !p.blocks[handle].live {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "handle %d is not allocated", handle)
	}

	return nil
}

func (p *Pool) gapAfter(handle BlockHandle) int {
	block := &p.blocks[handle]
	end := p.start + p.size
	if block.next != NoBlock {
		end = p.blocks[block.next].begin
	}
	return end - block.begin - block.size
}

func (p *Pool) freeSlot() BlockHandle {
	for handle := 1; handle < len(p.blocks); handle++ {
		if !p.blocks[handle].live {
			return BlockHandle(handle)
		}
	}
	return NoBlock
}

// CreateAllocationRequest searches the chain for a gap that can hold size bytes without modifying the pool.
// It returns false if every descriptor slot is in use or no gap is large enough. Compaction is never
// performed here; AllocBlock combines this with compaction.
func (p *Pool) CreateAllocationRequest(size int) (bool, AllocationRequest, error) {
	if size < 0 {
		return false, AllocationRequest{}, cerrors.Wrapf(memutils.ErrOutOfRange, "requested size %d", size)
	}

	if size == 0 || size > p.size {
		return false, AllocationRequest{}, nil
	}

	slot := p.freeSlot()
	if slot == NoBlock {
		return false, AllocationRequest{}, nil
	}

	request := AllocationRequest{
		BlockHandle: slot,
		After:       NoBlock,
		Size:        size,
	}

	found := false
	bestSize := p.size + 1
	handle := NoBlock
	for {
		gap := p.gapAfter(handle)

		if gap == size {
			request.After = handle
			request.Type = AllocationRequestExactFit
			found = true
			break
		}

		if gap > size && gap < bestSize {
			bestSize = gap
			request.After = handle
			request.Type = AllocationRequestBestFit
			found = true

			if p.strategy == AllocationStrategyMinTime {
				request.Type = AllocationRequestFirstFit
				break
			}
		}

		next := p.blocks[handle].next
		if next == NoBlock {
			break
		}
		handle = next
	}

	if !found {
		return false, AllocationRequest{}, nil
	}

	after := &p.blocks[request.After]
	request.Offset = after.begin + after.size
	return true, request, nil
}

// Alloc commits an AllocationRequest, linking the new block into the chain after the block the request
// selected. The request must have been created since the last modification to the pool.
func (p *Pool) Alloc(request AllocationRequest) error {
	if request.BlockHandle == NoBlock || int(request.BlockHandle) >= len(p.blocks) {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "request slot %d is outside of the pool's range", request.BlockHandle)
	}

	if p.blocks[request.BlockHandle].live {
		return errors.Errorf("request slot %d was claimed after the request was created", request.BlockHandle)
	}

	if request.After != NoBlock {
		if err := p.checkHandle(request.After); err != nil {
			return err
		}
	}

	after := &p.blocks[request.After]
	if request.Offset != after.begin+after.size || p.gapAfter(request.After) < request.Size {
		return errors.Errorf("request for %d bytes at offset %d no longer fits after block %d", request.Size, request.Offset, request.After)
	}

	p.blocks[request.BlockHandle] = memblock{
		begin: request.Offset,
		size:  request.Size,
		next:  after.next,
		live:  true,
	}
	after.next = request.BlockHandle

	p.allocCount++
	p.allocBytes += request.Size

	memutils.DebugValidate(p)
	return nil
}

// AllocBlock reserves size bytes and returns the new block's handle, or NoBlock if the pool cannot hold it.
// If no gap is large enough but the pool has enough free space in total, the pool is compacted and the
// request retried.
func (p *Pool) AllocBlock(size int) BlockHandle {
	p.logger.Debug("Pool::AllocBlock", slog.Int("Size", size))

	success, request, err := p.CreateAllocationRequest(size)
	if err != nil || (!success && !p.compactFor(size)) {
		return NoBlock
	}

	if !success {
		success, request, err = p.CreateAllocationRequest(size)
		if err != nil || !success {
			return NoBlock
		}
	}

	err = p.Alloc(request)
	if err != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "Pool::AllocBlock failed to commit request",
			slog.Int("Size", size), slog.Any("error", err))
		return NoBlock
	}

	return request.BlockHandle
}

func (p *Pool) compactFor(size int) bool {
	if size <= 0 || p.freeSlot() == NoBlock {
		return false
	}

	var stats memutils.DetailedStatistics
	stats.Clear()
	p.AddDetailedStatistics(&stats)
	if !stats.Fragmented(size) {
		return false
	}

	_, err := p.Compact(defrag.PassContext{TargetGap: size})
	if err != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "Pool::compactFor failed to relocate blocks",
			slog.Int("Size", size), slog.Any("error", err))
		return false
	}

	return true
}

// Compact runs a compaction with the budget in pass and returns the statistics for the run
func (p *Pool) Compact(pass defrag.PassContext) (defrag.DefragmentationStats, error) {
	err := p.compaction.Init()
	if err != nil {
		return defrag.DefragmentationStats{}, err
	}

	stats, err := p.compaction.Run(pass)
	p.compactionStats.Add(stats)

	p.logger.Debug("Pool::Compact",
		slog.Int("BytesMoved", stats.BytesMoved),
		slog.Int("AllocationsMoved", stats.AllocationsMoved),
		slog.Int("GapBytesClosed", stats.GapBytesClosed))

	memutils.DebugValidate(p)
	return stats, err
}

func (p *Pool) moveBlock(move defrag.DefragmentationMove[BlockHandle]) error {
	return p.mover.MoveBlock(move.DstOffset, move.SrcOffset, move.Size)
}

// FreeBlock unlinks a block from the chain and returns its descriptor slot to the pool
func (p *Pool) FreeBlock(handle BlockHandle) error {
	p.logger.Debug("Pool::FreeBlock", slog.Int("Handle", int(handle)))

	if err := p.checkHandle(handle); err != nil {
		return err
	}

	prev := NoBlock
	for p.blocks[prev].next != handle {
		prev = p.blocks[prev].next
		if prev == NoBlock {
			return errors.Errorf("live block %d is missing from the chain", handle)
		}
	}

	block := &p.blocks[handle]
	p.blocks[prev].next = block.next
	p.allocCount--
	p.allocBytes -= block.size
	*block = memblock{}

	memutils.DebugValidate(p)
	return nil
}

// ResizeBlock drops offset bytes from the front of a block
func (p *Pool) ResizeBlock(handle BlockHandle, offset int) error {
	if err := p.checkHandle(handle); err != nil {
		return err
	}

	return p.TruncateBlock(handle, offset, p.blocks[handle].size-offset)
}

// TruncateBlock advances the start of a block by offset bytes and sets its size. The new window must lie
// within the current one.
func (p *Pool) TruncateBlock(handle BlockHandle, offset int, size int) error {
	if err := p.checkHandle(handle); err != nil {
		return err
	}

	block := &p.blocks[handle]
	if offset < 0 || size < 0 || offset+size > block.size {
		return cerrors.Wrapf(memutils.ErrBlockGrowth, "block %d of %d bytes cannot become %d bytes at offset %d",
			handle, block.size, size, offset)
	}

	p.allocBytes -= block.size - size
	block.begin += offset
	block.size = size
	return nil
}

// BlockSize returns the size in bytes of a live block, or 0 if the handle does not refer to one
func (p *Pool) BlockSize(handle BlockHandle) int {
	if p.checkHandle(handle) != nil {
		return 0
	}
	return p.blocks[handle].size
}

// BlockRange returns the current arena address and size of a live block. The address changes when the
// pool compacts, so it should not be retained across allocations.
func (p *Pool) BlockRange(handle BlockHandle) (begin int, size int, err error) {
	if err := p.checkHandle(handle); err != nil {
		return 0, 0, err
	}

	block := &p.blocks[handle]
	return block.begin, block.size, nil
}

// ChainHead implements defrag.BlockChain
func (p *Pool) ChainHead() BlockHandle {
	return NoBlock
}

// NextInChain implements defrag.BlockChain
func (p *Pool) NextInChain(handle BlockHandle) (BlockHandle, bool) {
	next := p.blocks[handle].next
	return next, next != NoBlock
}

// ChainExtent implements defrag.BlockChain
func (p *Pool) ChainExtent(handle BlockHandle) (begin int, size int) {
	return p.blocks[handle].begin, p.blocks[handle].size
}

// Relocate implements defrag.BlockChain
func (p *Pool) Relocate(handle BlockHandle, begin int) {
	p.blocks[handle].begin = begin
}

// VisitAllRegions will call the provided callback once for each live block and each non-empty gap, in
// address order. Gaps are reported with the handle NoBlock.
func (p *Pool) VisitAllRegions(handleRegion func(handle BlockHandle, offset int, size int, free bool) error) error {
	handle := NoBlock
	for {
		block := &p.blocks[handle]
		if handle != NoBlock {
			if err := handleRegion(handle, block.begin, block.size, false); err != nil {
				return err
			}
		}

		if gap := p.gapAfter(handle); gap > 0 {
			if err := handleRegion(NoBlock, block.begin+block.size, gap, true); err != nil {
				return err
			}
		}

		if block.next == NoBlock {
			return nil
		}
		handle = block.next
	}
}

// AddStatistics adds this pool's occupancy to stats
func (p *Pool) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += p.size
	stats.AllocationCount += p.allocCount
	stats.AllocationBytes += p.allocBytes
	stats.FreeHandleCount += p.MaxBlocks() - p.allocCount
}

// AddDetailedStatistics adds this pool's occupancy and the distribution of its block and gap sizes to stats
func (p *Pool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += p.size
	stats.FreeHandleCount += p.MaxBlocks() - p.allocCount

	_ = p.VisitAllRegions(func(handle BlockHandle, offset int, size int, free bool) error {
		if free {
			stats.AddUnusedRange(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// PrintDetailedMap writes the arena's layout into json
func (p *Pool) PrintDetailedMap(json jwriter.ObjectState) {
	json.Name("Start").Int(p.start)
	json.Name("TotalBytes").Int(p.size)
	json.Name("UnusedBytes").Int(p.SumFreeSize())
	json.Name("Allocations").Int(p.allocCount)
	json.Name("FreeHandles").Int(p.MaxBlocks() - p.allocCount)

	compaction := json.Name("Compaction").Object()
	compaction.Name("Passes").Int(p.compactionStats.Passes)
	compaction.Name("BytesMoved").Int(p.compactionStats.BytesMoved)
	compaction.Name("AllocationsMoved").Int(p.compactionStats.AllocationsMoved)
	compaction.End()

	arrayState := json.Name("Regions").Array()
	_ = p.VisitAllRegions(func(handle BlockHandle, offset int, size int, free bool) error {
		obj := arrayState.Object()
		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("FREE")
		} else {
			obj.Name("Type").String("BLOCK")
			obj.Name("Handle").Int(int(handle))
		}
		obj.End()
		return nil
	})
	arrayState.End()
}

// Validate performs internal consistency checks on the pool: the chain must be address-ordered,
// non-overlapping, inside the arena, and must account for every live descriptor
func (p *Pool) Validate() error {
	sentinel := &p.blocks[NoBlock]
	if sentinel.begin != p.start || sentinel.size != 0 || !sentinel.live {
		return errors.Errorf("sentinel was corrupted: begin %d size %d", sentinel.begin, sentinel.size)
	}

	visited := 0
	bytes := 0
	end := p.start
	for handle := sentinel.next; handle != NoBlock; handle = p.blocks[handle].next {
		if int(handle) >= len(p.blocks) {
			return errors.Errorf("chain links to handle %d outside of the pool's range", handle)
		}

		visited++
		if visited > len(p.blocks)-1 {
			return errors.New("chain contains a cycle")
		}

		block := &p.blocks[handle]
		if !block.live {
			return errors.Errorf("chain links to free slot %d", handle)
		}

		if block.begin < end {
			return errors.Errorf("block %d at offset %d overlaps the previous block ending at %d", handle, block.begin, end)
		}

		end = block.begin + block.size
		if end > p.start+p.size {
			return errors.Errorf("block %d ends at %d, past the end of the arena at %d", handle, end, p.start+p.size)
		}

		bytes += block.size
	}

	if visited != p.allocCount {
		return errors.Errorf("chain holds %d blocks but %d are allocated", visited, p.allocCount)
	}

	live := 0
	for handle := 1; handle < len(p.blocks); handle++ {
		if p.blocks[handle].live {
			live++
		}
	}

	if live != visited {
		return errors.Errorf("%d descriptors are live but only %d are in the chain", live, visited)
	}

	if bytes != p.allocBytes {
		return errors.Errorf("chain covers %d bytes but %d are allocated", bytes, p.allocBytes)
	}

	return nil
}

// String returns a one-line summary of the pool's occupancy
func (p *Pool) String() string {
	return "Pool{" + strconv.Itoa(p.allocCount) + " blocks, " + strconv.Itoa(p.allocBytes) + "/" + strconv.Itoa(p.size) + " bytes}"
}
