// Package gate provides keyed read/write locks.
//
// The engine uses two gates: one keyed by event, taken shared by bet
// placement and exclusively by settlement (an event freeze), and one keyed
// by user, which serializes admission checks for the same user.
package gate

import "sync"

type entry struct {
	mu   sync.RWMutex
	refs int
}

// Gate hands out one RWMutex per key. Entries are dropped once no caller
// holds or waits on them.
type Gate struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty gate.
func New() *Gate {
	return &Gate{entries: make(map[string]*entry)}
}

func (g *Gate) acquire(key string) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[key]
	if !ok {
		e = &entry{}
		g.entries[key] = e
	}
	e.refs++
	return e
}

func (g *Gate) release(key string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(g.entries, key)
	}
}

// Lock takes the key exclusively and returns the unlock function.
func (g *Gate) Lock(key string) (unlock func()) {
	e := g.acquire(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		g.release(key, e)
	}
}

// RLock takes the key shared and returns the unlock function.
func (g *Gate) RLock(key string) (unlock func()) {
	e := g.acquire(key)
	e.mu.RLock()
	return func() {
		e.mu.RUnlock()
		g.release(key, e)
	}
}

// Len reports how many keys are currently held or awaited.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
