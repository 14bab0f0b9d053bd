// Package button turns edge events from a single GPIO line into blocking reads.
//
// An EdgeSource runs on the GPIO event goroutine and publishes each sampled
// level into a Slot. Readers block in Slot.Wait until a sample is pending and
// claim it. The slot holds at most one undelivered sample: a newer edge
// overwrites an unread one.
package button

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ErrInterrupted is returned when a blocked read is cancelled before an edge
// arrives. No sample was consumed; the caller may retry.
var ErrInterrupted = errors.New("button: wait interrupted")

// Level is a sampled line level, 0 or 1.
type Level int

// Line levels.
const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	return strconv.Itoa(int(l))
}

// Slot is a single-sample mailbox with a broadcast wake-up.
type Slot struct {
	mu    sync.Mutex
	level Level
	ready bool
	seen  bool

	// wake is closed by notify to release every parked waiter. It is created
	// by the first waiter to park after the previous notify.
	wake chan struct{}
}

// set stores level and marks it ready. It reports whether an undelivered
// sample was overwritten.
func (s *Slot) set(level Level) (overwrote bool) {
	s.mu.Lock()
	overwrote = s.ready
	s.level = level
	s.seen = true
	s.ready = true
	s.mu.Unlock()
	return overwrote
}

// notify wakes every waiter currently parked. It never blocks.
func (s *Slot) notify() {
	s.mu.Lock()
	wake := s.wake
	s.wake = nil
	s.mu.Unlock()
	if wake != nil {
		close(wake)
	}
}

// reset discards any pending sample.
func (s *Slot) reset() {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

// Wait blocks until a sample is pending, claims it and returns its level.
// When several callers wait on the same slot each edge is claimed by exactly
// one of them; the rest keep waiting. If ctx is done first Wait returns an
// error wrapping ErrInterrupted.
func (s *Slot) Wait(ctx context.Context) (Level, error) {
	for {
		s.mu.Lock()
		if s.ready {
			s.ready = false
			level := s.level
			s.mu.Unlock()
			return level, nil
		}
		// Registered under the same lock as the check above, so a notify
		// after the unlock still closes the channel we park on.
		if s.wake == nil {
			s.wake = make(chan struct{})
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
	}
}

// Ready reports whether a sample is pending.
func (s *Slot) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Peek returns the most recent sample without claiming it. ok is false if no
// edge has been seen yet.
func (s *Slot) Peek() (level Level, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.seen
}
