package enc28j60

// Ring performs address arithmetic inside the receive ring [Low, High). Addresses that run off the end
// of the ring continue at Low, the same way the chip's read pointer and DMA source wrap.
type Ring struct {
	Low  int
	High int
}

// Size returns the number of bytes in the ring
func (r Ring) Size() int {
	return r.High - r.Low
}

// Contains reports whether addr lies inside the ring
func (r Ring) Contains(addr int) bool {
	return addr >= r.Low && addr < r.High
}

// Add returns the address n bytes after addr, wrapping at the end of the ring. n may be negative.
func (r Ring) Add(addr int, n int) int {
	offset := (addr - r.Low + n) % r.Size()
	if offset < 0 {
		offset += r.Size()
	}
	return r.Low + offset
}

// Prev returns the address immediately before addr
func (r Ring) Prev(addr int) int {
	return r.Add(addr, -1)
}

// Distance returns the number of bytes from one address forward to another
func (r Ring) Distance(from int, to int) int {
	distance := (to - from) % r.Size()
	if distance < 0 {
		distance += r.Size()
	}
	return distance
}
