package button

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// waitResult carries the outcome of a Wait run on another goroutine.
type waitResult struct {
	level Level
	err   error
}

func goWait(ctx context.Context, s *Slot) <-chan waitResult {
	ch := make(chan waitResult, 1)
	go func() {
		level, err := s.Wait(ctx)
		ch <- waitResult{level, err}
	}()
	return ch
}

func TestSlotWaitReturnsPublishedLevel(t *testing.T) {
	var s Slot
	src := NewEdgeSource(&s)

	src.OnEdge(1)
	assert.True(t, s.Ready())

	level, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, High, level)
	assert.False(t, s.Ready(), "claim must clear readiness")
}

func TestSlotLastSampleWins(t *testing.T) {
	var s Slot
	src := NewEdgeSource(&s)

	src.OnEdge(0)
	src.OnEdge(1)
	src.OnEdge(0)
	src.OnEdge(1)

	level, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, High, level)
	assert.Equal(t, uint64(4), src.Edges())
	assert.Equal(t, uint64(3), src.Dropped())

	// Earlier samples were not queued.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Wait(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestSlotWaitBlocksWithoutEdge(t *testing.T) {
	var s Slot
	ctx, cancel := context.WithCancel(context.Background())
	res := goWait(ctx, &s)

	select {
	case r := <-res:
		t.Fatalf("Wait returned without an edge: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	r := <-res
	assert.ErrorIs(t, r.err, ErrInterrupted)
}

func TestSlotWaitWakesOnEdge(t *testing.T) {
	var s Slot
	src := NewEdgeSource(&s)
	res := goWait(context.Background(), &s)

	// Give the waiter a chance to park.
	time.Sleep(20 * time.Millisecond)
	src.OnEdge(0)

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, Low, r.level)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after edge")
	}
}

func TestSlotCancelIsNotZeroSample(t *testing.T) {
	var s Slot
	ctx, cancel := context.WithCancel(context.Background())
	res := goWait(ctx, &s)
	cancel()

	r := <-res
	require.Error(t, r.err)
	assert.True(t, errors.Is(r.err, ErrInterrupted))
	assert.True(t, errors.Is(r.err, context.Canceled))
}

func TestSlotOneClaimPerEdge(t *testing.T) {
	const waiters = 8

	var s Slot
	src := NewEdgeSource(&s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan waitResult, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			level, err := s.Wait(ctx)
			results <- waitResult{level, err}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	src.OnEdge(1)

	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, High, r.level)
	case <-time.After(time.Second):
		t.Fatal("no waiter claimed the edge")
	}

	// Everyone else is still waiting for the next edge.
	select {
	case r := <-results:
		t.Fatalf("second waiter returned for the same edge: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}

	src.OnEdge(0)
	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, Low, r.level)
	case <-time.After(time.Second):
		t.Fatal("no waiter claimed the second edge")
	}

	cancel()
	wg.Wait()
	close(results)
	for r := range results {
		assert.ErrorIs(t, r.err, ErrInterrupted)
	}
}

func TestSlotNoLostWakeup(t *testing.T) {
	// Edges racing against a waiter that is about to park must never be lost.
	var s Slot
	src := NewEdgeSource(&s)

	for i := 0; i < 1000; i++ {
		res := goWait(context.Background(), &s)
		src.OnEdge(i % 2)
		select {
		case r := <-res:
			require.NoError(t, r.err)
			require.Equal(t, Level(i%2), r.level)
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: wake-up lost", i)
		}
	}
}

func TestSlotPeek(t *testing.T) {
	var s Slot
	_, ok := s.Peek()
	assert.False(t, ok)

	src := NewEdgeSource(&s)
	src.OnEdge(1)
	_, err := s.Wait(context.Background())
	require.NoError(t, err)

	level, ok := s.Peek()
	assert.True(t, ok)
	assert.Equal(t, High, level)
	assert.False(t, s.Ready(), "peek must not restore readiness")
}

func TestSlotReset(t *testing.T) {
	var s Slot
	NewEdgeSource(&s).OnEdge(1)
	s.reset()
	assert.False(t, s.Ready())
}

func TestEdgeSourceInvalidLevelPanics(t *testing.T) {
	var s Slot
	src := NewEdgeSource(&s)
	assert.Panics(t, func() { src.OnEdge(2) })
	assert.Panics(t, func() { src.OnEdge(-1) })
	assert.False(t, s.Ready())
	assert.Zero(t, src.Edges())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "0", Low.String())
	assert.Equal(t, "1", High.String())
}
