package memutils

import "github.com/pkg/errors"

// ErrInvalidHandle is returned when a block handle is out of range for its pool or does not refer to a live block
var ErrInvalidHandle error = errors.New("handle does not refer to a live block")

// ErrBlockGrowth is returned when a resize would extend a block past the span it was allocated with
var ErrBlockGrowth error = errors.New("blocks may only shrink")

// ErrOutOfRange is returned when an offset or length falls outside of the block it addresses
var ErrOutOfRange error = errors.New("offset out of range")
