package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"facecapture/internal/model"
)

// Gate allows at most one classification in flight. Sets submitted while
// busy are dropped, never queued.
type Gate struct {
	handler func(context.Context, model.LandmarkSet)

	mu   sync.Mutex
	busy bool
	wg   sync.WaitGroup

	submitted uint64 // atomic
	dropped   uint64 // atomic
}

// NewGate creates a gate that runs handler for every accepted set.
func NewGate(handler func(context.Context, model.LandmarkSet)) *Gate {
	return &Gate{handler: handler}
}

// Submit runs the handler on a new goroutine if the gate is idle and
// reports whether the set was accepted.
func (g *Gate) Submit(ctx context.Context, set model.LandmarkSet) bool {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		atomic.AddUint64(&g.dropped, 1)
		return false
	}
	g.busy = true
	g.wg.Add(1)
	g.mu.Unlock()

	atomic.AddUint64(&g.submitted, 1)

	go func() {
		defer g.wg.Done()
		defer g.release()
		g.handler(ctx, set)
	}()
	return true
}

func (g *Gate) release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// Busy reports whether a request is outstanding.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// wait blocks until the outstanding request, if any, has finished.
func (g *Gate) wait() {
	g.wg.Wait()
}

// Submitted is the number of accepted sets.
func (g *Gate) Submitted() uint64 {
	return atomic.LoadUint64(&g.submitted)
}

// Dropped is the number of sets discarded because the gate was busy.
func (g *Gate) Dropped() uint64 {
	return atomic.LoadUint64(&g.dropped)
}
