package metadata

// AllocationStrategy exposes several options for choosing the location of a new block within the arena
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory selects the smallest gap that can hold the block, accepting the first gap
	// that matches the requested size exactly without scanning further. This keeps large gaps intact for
	// large requests and is the default.
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime selects the first gap in address order that can hold the block, minimizing
	// the length of the scan at the expense of fragmentation.
	AllocationStrategyMinTime
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "AllocationStrategyMinMemory",
	AllocationStrategyMinTime:   "AllocationStrategyMinTime",
}

func (s AllocationStrategy) String() string {
	return allocationStrategyMapping[s]
}
