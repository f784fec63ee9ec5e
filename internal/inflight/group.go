// Package inflight collapses concurrent calls for the same key into one.
//
// Group is a thin layer over golang.org/x/sync/singleflight. Singleflight
// forgets a key the moment its call returns; Group additionally remembers the
// settled outcome for a grace window, so a caller that arrives just after
// completion gets the same answer instead of starting a second call.
package inflight

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type outcome[T any] struct {
	val T
	err error
	gen uint64
}

// Group runs at most one call per key at a time. The zero value is not
// usable; create one with New.
type Group[T any] struct {
	flight singleflight.Group
	grace  time.Duration

	mu      sync.Mutex
	gen     uint64
	settled map[string]outcome[T]
	// forgotten holds the generation of the last Forget per key. A call that
	// started before it must not cache its outcome.
	forgotten map[string]uint64
}

// New returns a Group that keeps settled outcomes for grace. A grace of zero
// disables the window: only truly concurrent callers share a result.
func New[T any](grace time.Duration) *Group[T] {
	return &Group[T]{
		grace:     grace,
		settled:   make(map[string]outcome[T]),
		forgotten: make(map[string]uint64),
	}
}

// Do returns the outcome of fn for key. If a call for key is already running,
// or finished within the grace window, its outcome is returned and fn is not
// called. shared reports whether the result came from another caller.
func (g *Group[T]) Do(key string, fn func() (T, error)) (v T, err error, shared bool) {
	if o, ok := g.lookup(key); ok {
		return o.val, o.err, true
	}

	res, err, shared := g.flight.Do(key, func() (any, error) {
		// A leader may have settled between our lookup and this call.
		if o, ok := g.lookup(key); ok {
			return o.val, o.err
		}
		start := g.generation()
		val, err := fn()
		g.settle(key, start, outcome[T]{val: val, err: err})
		return val, err
	})

	val, ok := res.(T)
	if !ok && res != nil {
		return v, fmt.Errorf("inflight: unexpected result type %T", res), shared
	}
	return val, err, shared
}

// Forget drops any settled outcome for key. A call already in progress still
// answers its own waiters, but its outcome is not kept for later callers.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.settled, key)
	g.gen++
	g.forgotten[key] = g.gen
}

// Len returns the number of settled outcomes currently held.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.settled)
}

func (g *Group[T]) lookup(key string) (outcome[T], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.settled[key]
	return o, ok
}

func (g *Group[T]) generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

func (g *Group[T]) settle(key string, start uint64, o outcome[T]) {
	g.mu.Lock()
	if f, ok := g.forgotten[key]; ok {
		if f > start {
			g.mu.Unlock()
			return
		}
		delete(g.forgotten, key)
	}
	if g.grace <= 0 {
		g.mu.Unlock()
		return
	}
	g.gen++
	o.gen = g.gen
	g.settled[key] = o
	g.mu.Unlock()

	time.AfterFunc(g.grace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		// Only evict the outcome this timer was armed for.
		if cur, ok := g.settled[key]; ok && cur.gen == o.gen {
			delete(g.settled, key)
		}
	})
}
