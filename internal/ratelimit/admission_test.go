package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGate() *Gate {
	return NewGate(GateConfig{MaxConcurrent: 10, MaxQueue: 20})
}

func TestGate_AcquireImmediateUpToCapacity(t *testing.T) {
	g := testGate()

	for i := 0; i < 10; i++ {
		immediate, pos := g.Acquire()
		assert.True(t, immediate, "acquire %d should be immediate", i+1)
		assert.Equal(t, 0, pos)
	}

	status := g.Status()
	assert.Equal(t, 10, status.Active)
	assert.Equal(t, 0, status.Queue)
}

func TestGate_EleventhCallerQueues(t *testing.T) {
	g := testGate()

	for i := 0; i < 10; i++ {
		g.Acquire()
	}

	immediate, pos := g.Acquire()
	assert.False(t, immediate)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 1, g.Status().Queue)
}

func TestGate_CanAcceptBoundary(t *testing.T) {
	g := testGate()

	// Fill to one below total capacity: 10 active + 19 queued.
	for i := 0; i < 29; i++ {
		g.Acquire()
	}
	ok, status := g.CanAccept()
	assert.True(t, ok, "one below capacity should accept")
	assert.Equal(t, 29, status.Total)

	// Exactly at capacity: 30th occupant.
	g.Acquire()
	ok, status = g.CanAccept()
	assert.False(t, ok, "at capacity should reject")
	assert.Equal(t, 10, status.Active)
	assert.Equal(t, 20, status.Queue)

	// The probe itself mutates nothing.
	assert.Equal(t, 30, g.Status().Total)
}

func TestGate_ReleaseFloorsAtZero(t *testing.T) {
	g := testGate()

	g.Release()
	g.Release()
	assert.Equal(t, 0, g.Status().Active)
}

func TestGate_QueuedWakeupOnRelease(t *testing.T) {
	g := testGate()

	for i := 0; i < 10; i++ {
		g.Acquire()
	}

	immediate, pos := g.Acquire()
	require.False(t, immediate)
	require.Equal(t, 1, pos)

	acquired := make(chan error, 1)
	go func() {
		acquired <- g.WaitForSlot(context.Background())
	}()

	// The waiter stays parked until someone releases.
	select {
	case <-acquired:
		t.Fatal("waiter should not acquire while gate is full")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}

	status := g.Status()
	assert.Equal(t, 10, status.Active)
	assert.Equal(t, 0, status.Queue)
}

func TestGate_WaitForSlotContextCancelled(t *testing.T) {
	g := testGate()

	for i := 0; i < 10; i++ {
		g.Acquire()
	}
	g.Acquire() // join the queue

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- g.WaitForSlot(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	// The aborted waiter left the queue without taking a slot.
	status := g.Status()
	assert.Equal(t, 10, status.Active)
	assert.Equal(t, 0, status.Queue)
}

func TestGate_WaitForSlotDeadline(t *testing.T) {
	g := NewGate(GateConfig{MaxConcurrent: 1, MaxQueue: 5})
	g.Acquire()
	g.Acquire()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := g.WaitForSlot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, g.Status().Queue)
}

func TestGate_ConcurrentAcquireNeverExceedsCap(t *testing.T) {
	g := testGate()

	var mu sync.Mutex
	peak := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			immediate, _ := g.Acquire()
			if !immediate {
				if err := g.WaitForSlot(context.Background()); err != nil {
					return
				}
			}

			status := g.Status()
			mu.Lock()
			if status.Active > peak {
				peak = status.Active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)
			g.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 10, "active count must never exceed max concurrent")
	status := g.Status()
	assert.Equal(t, 0, status.Active)
	assert.Equal(t, 0, status.Queue)
}
