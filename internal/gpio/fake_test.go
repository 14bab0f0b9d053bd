package gpio

import (
	"errors"
	"testing"
)

func TestFakeChipAcquire(t *testing.T) {
	c := NewFakeChip(1)

	l, err := c.Acquire(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Line.Offset() != 7 {
		t.Errorf("offset: got %d, want 7", c.Line.Offset())
	}
	if c.Acquired() != 1 {
		t.Errorf("acquired: got %d, want 1", c.Acquired())
	}

	v, err := l.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Errorf("value: got %d, want 1", v)
	}
}

func TestFakeChipAcquireError(t *testing.T) {
	c := NewFakeChip(0)
	c.AcquireError = ErrBusy

	_, err := c.Acquire(7)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if c.Acquired() != 0 {
		t.Errorf("acquired: got %d, want 0", c.Acquired())
	}
}

func TestFakeLineFireUnbound(t *testing.T) {
	c := NewFakeChip(0)
	l, _ := c.Acquire(7)

	if c.Line.Fire(1) {
		t.Error("expected no handler call before BindEdges")
	}

	// The level still changes.
	v, _ := l.Value()
	if v != 1 {
		t.Errorf("value: got %d, want 1", v)
	}
}

func TestFakeLineFireBound(t *testing.T) {
	c := NewFakeChip(0)
	l, _ := c.Acquire(7)

	var got []int
	if err := l.BindEdges(func(level int) { got = append(got, level) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Line.Bound() {
		t.Error("expected line to be bound")
	}

	c.Line.Fire(1)
	c.Line.Fire(0)

	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("edges: got %v, want [1 0]", got)
	}

	if err := l.UnbindEdges(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Line.Fire(1) {
		t.Error("expected no handler call after UnbindEdges")
	}
}

func TestFakeLineBindError(t *testing.T) {
	c := NewFakeChip(0)
	c.Line.BindError = errors.New("simulated error")
	l, _ := c.Acquire(7)

	if err := l.BindEdges(func(int) {}); err == nil {
		t.Error("expected error to be returned")
	}
	if c.Line.Bound() {
		t.Error("line should not be bound after failed BindEdges")
	}
}

func TestFakeLineClose(t *testing.T) {
	c := NewFakeChip(0)
	l, _ := c.Acquire(7)
	l.BindEdges(func(int) {})

	if c.Line.Closed() {
		t.Error("should not be closed initially")
	}
	if err := l.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !c.Line.Closed() {
		t.Error("should be closed after Close()")
	}
	if c.Line.Bound() {
		t.Error("close should drop the edge handler")
	}
	if err := l.Close(); err == nil {
		t.Error("expected error on second Close()")
	}
	if _, err := l.Value(); err == nil {
		t.Error("expected error reading a closed line")
	}

	// Re-acquiring reopens the line.
	if _, err := c.Acquire(7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Line.Closed() {
		t.Error("line should be open after re-acquire")
	}
}
