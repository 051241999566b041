package metadata

// AllocationRequestType indicates how the gap for an AllocationRequest was chosen
type AllocationRequestType uint32

const (
	// AllocationRequestExactFit indicates that the gap is exactly the requested size
	AllocationRequestExactFit AllocationRequestType = iota
	// AllocationRequestBestFit indicates that the gap is the smallest one larger than the requested size
	AllocationRequestBestFit
	// AllocationRequestFirstFit indicates that the gap is the first one in address order large enough for
	// the request
	AllocationRequestFirstFit
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestExactFit: "ExactFit",
	AllocationRequestBestFit:  "BestFit",
	AllocationRequestFirstFit: "FirstFit",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is a type returned from Pool.CreateAllocationRequest which indicates where the pool
// intends to place a new block. It is committed with Pool.Alloc, and is only valid until the pool is
// next modified.
type AllocationRequest struct {
	// BlockHandle is the free descriptor slot the new block will occupy
	BlockHandle BlockHandle
	// After is the live block (or the sentinel) that the new block will be linked after
	After BlockHandle
	// Offset is the arena address the new block will begin at
	Offset int
	// Size is the size of the new block in bytes
	Size int
	// Type identifies how the gap was selected
	Type AllocationRequestType
}
