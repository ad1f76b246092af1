package service

import "sync/atomic"

// processGuard prevents reentrant apply passes inside one process. It is
// distinct from the store-wide product lock: the guard stops a tick from
// overlapping a manual run in the same instance, the lock arbitrates
// between instances.
type processGuard struct {
	busy atomic.Bool
}

// tryEnter claims the guard. Returns false if a pass is already running.
func (g *processGuard) tryEnter() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *processGuard) leave() {
	g.busy.Store(false)
}
