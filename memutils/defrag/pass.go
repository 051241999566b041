package defrag

import "math"

// PassContext is an object used to track data for the current compaction
// pass across multiple relocations
type PassContext struct {
	// MaxPassBytes is the maximum number of bytes to relocate in each pass. A block that would push the pass
	// over this budget stays where it is and the pass continues with the blocks after it. Zero means no limit.
	MaxPassBytes int
	// MaxPassAllocations is the maximum number of relocations to perform in each pass. Zero means no limit.
	MaxPassAllocations int
	// TargetGap is the gap size, in bytes, at which AlgorithmFast stops sliding blocks. It is ignored
	// by AlgorithmFull.
	TargetGap int
	// Stats contains statistics for the current pass, such as bytes moved,
	// allocations performed, etc.
	Stats         DefragmentationStats
	ignoredAllocs int
}

const defragMaxAllocsToIgnore = 16

func (p *PassContext) maxBytes() int {
	if p.MaxPassBytes <= 0 {
		return math.MaxInt
	}
	return p.MaxPassBytes
}

func (p *PassContext) maxAllocations() int {
	if p.MaxPassAllocations <= 0 {
		return math.MaxInt
	}
	return p.MaxPassAllocations
}

func (p *PassContext) checkCounters(bytes int) defragCounterStatus {
	// Leave the block in place if it will exceed max size for copy
	if p.Stats.BytesMoved+bytes > p.maxBytes() {
		p.ignoredAllocs++
		if p.ignoredAllocs < defragMaxAllocsToIgnore {
			return defragCounterIgnore
		}
		return defragCounterEnd
	}

	p.ignoredAllocs = 0
	return defragCounterPass
}

func (p *PassContext) incrementCounters(bytes int, distance int) bool {
	p.Stats.BytesMoved += bytes
	p.Stats.AllocationsMoved++
	p.Stats.GapBytesClosed += distance

	return p.Stats.AllocationsMoved >= p.maxAllocations() || p.Stats.BytesMoved >= p.maxBytes()
}

type defragCounterStatus uint32

const (
	defragCounterPass defragCounterStatus = iota
	defragCounterIgnore
	defragCounterEnd
)

var defragCounterStatusMapping = map[defragCounterStatus]string{
	defragCounterPass:   "defragCounterPass",
	defragCounterIgnore: "defragCounterIgnore",
	defragCounterEnd:    "defragCounterEnd",
}

func (s defragCounterStatus) String() string {
	return defragCounterStatusMapping[s]
}
