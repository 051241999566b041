package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

// CheckRange verifies that value lies within [0, limit) and returns ErrOutOfRange wrapped with the
// value's name if it does not
func CheckRange[T Number](value T, limit T, name string) error {
	if value < 0 || value >= limit {
		return cerrors.Wrapf(ErrOutOfRange, "%s is %d, limit %d", name, value, limit)
	}
	return nil
}

// ClipLength returns the number of bytes that may be transferred starting at pos in a region of
// size bytes when length bytes were requested
func ClipLength[T Number](pos, length, size T) T {
	if pos < 0 || pos >= size || length <= 0 {
		return 0
	}
	if length > size-pos {
		return size - pos
	}
	return length
}
