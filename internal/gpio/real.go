//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// RealChip acquires lines from an actual gpiochip using the Linux GPIO
// character device.
type RealChip struct {
	name     string
	consumer string
}

// NewRealChip returns an Acquirer for the named chip (e.g. "gpiochip0").
// Lines are requested under the given consumer label.
func NewRealChip(name, consumer string) *RealChip {
	return &RealChip{name: name, consumer: consumer}
}

// RealLine is a line requested from a RealChip.
type RealLine struct {
	chip    *gpiocdev.Chip
	line    *gpiocdev.Line
	offset  int
	handler atomic.Pointer[EdgeHandler]
}

// Acquire opens the chip and requests offset as an input. The request carries
// an event handler so edges can be switched on later by BindEdges.
func (c *RealChip) Acquire(offset int) (Line, error) {
	chip, err := gpiocdev.NewChip(c.name, gpiocdev.WithConsumer(c.consumer))
	if err != nil {
		return nil, classify(fmt.Errorf("open gpio chip %s: %w", c.name, err))
	}

	l := &RealLine{chip: chip, offset: offset}
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(l.dispatch))
	if err != nil {
		chip.Close()
		return nil, classify(fmt.Errorf("request line %d: %w", offset, err))
	}
	l.line = line
	return l, nil
}

// dispatch runs on the gpiocdev event goroutine.
func (l *RealLine) dispatch(evt gpiocdev.LineEvent) {
	h := l.handler.Load()
	if h == nil {
		return
	}
	level := 0
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = 1
	}
	(*h)(level)
}

// Value returns the instantaneous level of the line.
func (l *RealLine) Value() (int, error) {
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read line %d: %w", l.offset, err)
	}
	return v, nil
}

// BindEdges routes rising and falling edges to h.
func (l *RealLine) BindEdges(h EdgeHandler) error {
	l.handler.Store(&h)
	if err := l.line.Reconfigure(gpiocdev.WithBothEdges); err != nil {
		l.handler.Store(nil)
		return classify(fmt.Errorf("enable edges on line %d: %w", l.offset, err))
	}
	return nil
}

// UnbindEdges disables edge detection and drops the handler.
func (l *RealLine) UnbindEdges() error {
	err := l.line.Reconfigure(gpiocdev.WithoutEdges)
	l.handler.Store(nil)
	if err != nil {
		return fmt.Errorf("disable edges on line %d: %w", l.offset, err)
	}
	return nil
}

// Close releases the line and its chip.
func (l *RealLine) Close() error {
	var err error
	if l.line != nil {
		if cerr := l.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close line %d: %w", l.offset, cerr))
		}
	}
	if l.chip != nil {
		if cerr := l.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
	}
	return err
}

// classify tags err with ErrBusy when the kernel reports the line is already
// requested, and ErrUnavailable otherwise.
func classify(err error) error {
	if errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
