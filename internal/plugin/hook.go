package plugin

import (
	"context"
	"sort"
	"sync"
)

// ActionFunc is a side-effect callback fired after a lifecycle event
type ActionFunc func(ctx context.Context, args ...interface{})

type actionEntry struct {
	priority int
	seq      int
	fn       ActionFunc
}

// HookManager dispatches named action hooks. Callbacks run in priority
// order (lower first, registration order breaks ties) and must not
// block: the apply engine fires hooks after the publish is already
// committed, so a failing callback never rolls anything back.
type HookManager struct {
	mu      sync.RWMutex
	actions map[string][]actionEntry
	seq     int
}

func NewHookManager() *HookManager {
	return &HookManager{actions: make(map[string][]actionEntry)}
}

// Register adds a callback for the named hook
func (h *HookManager) Register(name string, priority int, fn ActionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	entries := append(h.actions[name], actionEntry{priority: priority, seq: h.seq, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})
	h.actions[name] = entries
}

// Do fires all callbacks registered for the named hook
func (h *HookManager) Do(ctx context.Context, name string, args ...interface{}) {
	h.mu.RLock()
	entries := make([]actionEntry, len(h.actions[name]))
	copy(entries, h.actions[name])
	h.mu.RUnlock()

	for _, e := range entries {
		e.fn(ctx, args...)
	}
}

// Count returns the number of callbacks registered for the named hook
func (h *HookManager) Count(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actions[name])
}
