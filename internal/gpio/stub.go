//go:build !linux

package gpio

import "fmt"

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns a chip whose lines can never be acquired.
func NewRealChip(name, consumer string) *RealChip {
	return &RealChip{}
}

// Acquire returns ErrUnavailable on non-Linux platforms.
func (c *RealChip) Acquire(offset int) (Line, error) {
	return nil, fmt.Errorf("%w: not supported on this platform (requires Linux)", ErrUnavailable)
}
