package button

import (
	"fmt"

	"go.uber.org/atomic"
)

// EdgeSource publishes sampled levels into a Slot. OnEdge is meant to be bound
// as a gpio.EdgeHandler.
type EdgeSource struct {
	slot    *Slot
	edges   atomic.Uint64
	dropped atomic.Uint64
}

// NewEdgeSource returns an EdgeSource feeding slot.
func NewEdgeSource(slot *Slot) *EdgeSource {
	return &EdgeSource{slot: slot}
}

// OnEdge records level as the latest sample and wakes waiting readers.
// A level outside {0,1} means the binding is broken and panics.
func (e *EdgeSource) OnEdge(level int) {
	if level != int(Low) && level != int(High) {
		panic(fmt.Sprintf("button: invalid line level %d", level))
	}
	e.edges.Inc()
	if e.slot.set(Level(level)) {
		e.dropped.Inc()
	}
	e.slot.notify()
}

// Edges returns the number of edges seen.
func (e *EdgeSource) Edges() uint64 {
	return e.edges.Load()
}

// Dropped returns the number of samples overwritten before any reader
// claimed them.
func (e *EdgeSource) Dropped() uint64 {
	return e.dropped.Load()
}
