package sync

import (
	"context"
	stdsync "sync"
)

// Gate is a level-triggered flag. Wait blocks while the gate is clear and
// returns immediately while it is set, so a worker that checks it late still
// observes the current level instead of a missed edge.
type Gate struct {
	mu   stdsync.Mutex
	set  bool
	wait chan struct{}
}

// NewGate creates a cleared gate
func NewGate() *Gate {
	return &Gate{wait: make(chan struct{})}
}

// Set opens the gate and releases every waiter
func (g *Gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set {
		return
	}
	g.set = true
	close(g.wait)
}

// Clear closes the gate; later waiters block until the next Set
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.set {
		return
	}
	g.set = false
	g.wait = make(chan struct{})
}

// IsSet reports the current level
func (g *Gate) IsSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set
}

// Wait blocks until the gate is set or ctx is done
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.wait
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
