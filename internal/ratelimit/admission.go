package ratelimit

import (
	"context"
	"sync"

	"outfitter/internal/models"
)

// GateConfig holds the admission gate's capacity constants.
type GateConfig struct {
	MaxConcurrent int // AI calls allowed in flight
	MaxQueue      int // callers allowed in the waiting line
}

// Gate is the global bounded-concurrency gate shared by all identities.
// Both counters are mutated together under one mutex; waiters block on a
// condition variable signalled on every release rather than polling.
//
// Queue positions are informational only. Waiters wake in whatever order the
// scheduler resumes them, so service order is best-effort FIFO, not strict.
type Gate struct {
	cfg GateConfig

	mu     sync.Mutex
	cond   *sync.Cond
	active int
	queued int
}

// NewGate creates an admission gate with the given capacity.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{cfg: cfg}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// CanAccept reports whether a new caller fits in the gate at all, in flight
// or queued. It is a pure probe and reserves nothing.
func (g *Gate) CanAccept() (bool, models.QueueStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ok := g.active+g.queued < g.cfg.MaxConcurrent+g.cfg.MaxQueue
	return ok, g.statusLocked()
}

// Acquire takes a slot immediately when one is free, returning (true, 0).
// Otherwise it joins the waiting line and returns (false, position) where
// position is the caller's rank at enqueue time; the caller must then invoke
// WaitForSlot before proceeding.
func (g *Gate) Acquire() (immediate bool, position int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active < g.cfg.MaxConcurrent {
		g.active++
		return true, 0
	}

	g.queued++
	return false, g.queued
}

// WaitForSlot blocks a queued caller until a slot frees up, then moves it
// from the queue to active. The wait is bounded by ctx; on cancellation the
// caller leaves the queue without taking a slot.
func (g *Gate) WaitForSlot(ctx context.Context) error {
	// Wake the waiter when the context ends so the loop can observe ctx.Err.
	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	for g.active >= g.cfg.MaxConcurrent {
		if err := ctx.Err(); err != nil {
			if g.queued > 0 {
				g.queued--
			}
			return err
		}
		g.cond.Wait()
	}

	g.active++
	if g.queued > 0 {
		g.queued--
	}
	return nil
}

// Release frees a slot and wakes one waiter. It floors at zero so a stray
// double release cannot drive the active count negative.
func (g *Gate) Release() {
	g.mu.Lock()
	if g.active > 0 {
		g.active--
	}
	g.cond.Signal()
	g.mu.Unlock()
}

// Status returns a snapshot of the gate for client-facing polling.
func (g *Gate) Status() models.QueueStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

// statusLocked builds a status snapshot. Caller holds g.mu.
func (g *Gate) statusLocked() models.QueueStatus {
	return models.QueueStatus{
		Active: g.active,
		Queue:  g.queued,
		Total:  g.active + g.queued,
	}
}
