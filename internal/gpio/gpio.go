// Package gpio acquires the button's input line and binds an edge handler to it.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

var (
	// ErrBusy is returned when the line is already held by another consumer.
	ErrBusy = errors.New("gpio: line busy")

	// ErrUnavailable is returned when the chip or line cannot be acquired
	// for any other reason (missing chip, bad offset, permissions).
	ErrUnavailable = errors.New("gpio: line unavailable")
)

// EdgeHandler receives the line level sampled at a rising (1) or falling (0)
// edge. It is called serially for a given line and must not block.
type EdgeHandler func(level int)

// Acquirer hands out input lines.
type Acquirer interface {
	// Acquire requests the line at offset as an input with edge detection
	// disabled. Errors wrap ErrBusy or ErrUnavailable.
	Acquire(offset int) (Line, error)
}

// Line is an acquired input line.
type Line interface {
	// Value returns the instantaneous level of the line.
	Value() (int, error)

	// BindEdges enables detection of both edges and routes them to h.
	BindEdges(h EdgeHandler) error

	// UnbindEdges disables edge detection. Events already in flight may
	// still reach the previous handler.
	UnbindEdges() error

	// Close releases the line.
	Close() error
}

// Defaults for the boot key on the reference board.
const (
	DefaultChip     = "gpiochip0"
	DefaultConsumer = "BOOT_KEY"
)
