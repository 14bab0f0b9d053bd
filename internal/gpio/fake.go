package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// FakeChip is a test double that hands out a single scripted FakeLine.
type FakeChip struct {
	// Line is returned by every successful Acquire.
	Line *FakeLine

	// AcquireError, if set, will be returned by Acquire.
	AcquireError error

	mu       sync.Mutex
	acquired int
}

// NewFakeChip creates a FakeChip whose line starts at level.
func NewFakeChip(level int) *FakeChip {
	return &FakeChip{Line: &FakeLine{level: level}}
}

// Acquire returns the fake line, or AcquireError if set.
func (c *FakeChip) Acquire(offset int) (Line, error) {
	if c.AcquireError != nil {
		return nil, c.AcquireError
	}
	c.mu.Lock()
	c.acquired++
	c.mu.Unlock()

	c.Line.mu.Lock()
	c.Line.offset = offset
	c.Line.closed = false
	c.Line.mu.Unlock()
	return c.Line, nil
}

// Acquired returns how many times Acquire succeeded.
func (c *FakeChip) Acquired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

// FakeLine is a test double for an input line. Fire simulates an edge.
type FakeLine struct {
	// BindError, if set, will be returned by BindEdges.
	BindError error

	// ValueError, if set, will be returned by Value.
	ValueError error

	// fire serialises edges like the kernel does for a single line.
	fire sync.Mutex

	mu      sync.Mutex
	offset  int
	level   int
	handler EdgeHandler
	closed  bool
}

// Value returns the current simulated level.
func (l *FakeLine) Value() (int, error) {
	if l.ValueError != nil {
		return 0, l.ValueError
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errors.New("gpio: line closed")
	}
	return l.level, nil
}

// BindEdges records h as the edge handler.
func (l *FakeLine) BindEdges(h EdgeHandler) error {
	if l.BindError != nil {
		return l.BindError
	}
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
	return nil
}

// UnbindEdges drops the edge handler.
func (l *FakeLine) UnbindEdges() error {
	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
	return nil
}

// Close marks the line as released.
func (l *FakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("gpio: line %d already closed", l.offset)
	}
	l.closed = true
	l.handler = nil
	return nil
}

// Fire sets the line to level and, if edges are bound, delivers the edge.
// It reports whether a handler was called.
func (l *FakeLine) Fire(level int) bool {
	l.fire.Lock()
	defer l.fire.Unlock()

	l.mu.Lock()
	l.level = level
	h := l.handler
	l.mu.Unlock()

	if h == nil {
		return false
	}
	h(level)
	return true
}

// Bound reports whether an edge handler is currently bound.
func (l *FakeLine) Bound() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

// Closed reports whether the line has been released.
func (l *FakeLine) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Offset returns the offset the line was last acquired at.
func (l *FakeLine) Offset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}
