// Package redex implements the per-worker LIFO redex bag: pending active
// pairs, partitioned into fast and slow priority classes so fast
// interactions (link, void, erase) drain ahead of slow ones (call, commute,
// operate) within a budget window.
//
// The bag is private to exactly one worker and donates to thieves on steal;
// see DESIGN.md for how this differs from a shared work queue.
package redex

import (
	"sync"

	"github.com/hvmcore/hvmc/internal/port"
)

// Class is the priority class of a redex.
type Class uint8

const (
	Fast Class = iota
	Slow
)

// Pair is an active pair: two ports that are both principal (or one is
// REF/NUM/ERA), ready for a rule to consume.
type Pair struct {
	A, B port.Port
}

// ClassOf classifies a pair by the interaction it will trigger, used to
// route it into the fast or slow class on Push.
func ClassOf(a, b port.Port) Class {
	ta, tb := a.Tag(), b.Tag()
	switch {
	case ta == port.VAR || tb == port.VAR:
		return Fast
	case ta == port.ERA || tb == port.ERA:
		return Fast
	default:
		return Slow
	}
}

// Bag is a single worker's LIFO of pending redexes, split by class. The
// owning worker's own Push/Pop calls never contend with each other (one
// goroutine), but StealHalf is called from a thief's goroutine concurrently
// with the owner's Push/Pop, so every method takes mu.
type Bag struct {
	mu   sync.Mutex
	fast []Pair
	slow []Pair
}

func New() *Bag { return &Bag{} }

// Push adds a redex to its class's stack.
func (b *Bag) Push(a, c port.Port) {
	p := Pair{A: a, B: c}
	b.mu.Lock()
	if ClassOf(a, c) == Fast {
		b.fast = append(b.fast, p)
	} else {
		b.slow = append(b.slow, p)
	}
	b.mu.Unlock()
}

// Pop removes and returns the next redex, draining Fast before Slow. The
// second return is false when the bag is empty.
func (b *Bag) Pop() (Pair, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.fast); n > 0 {
		p := b.fast[n-1]
		b.fast = b.fast[:n-1]
		return p, true
	}
	if n := len(b.slow); n > 0 {
		p := b.slow[n-1]
		b.slow = b.slow[:n-1]
		return p, true
	}
	return Pair{}, false
}

// Len returns the total number of pending redexes across both classes.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fast) + len(b.slow)
}

// Empty reports whether the bag holds no pending redexes.
func (b *Bag) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fast) == 0 && len(b.slow) == 0
}

// StealHalf moves roughly half of the bag's Slow redexes (capped at budget,
// when budget > 0) into a freshly allocated slice, leaving the rest. Fast
// redexes are never stolen: they are meant to be drained locally within the
// current budget window. Returns nil if there is nothing worth donating.
func (b *Bag) StealHalf(budget int) []Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.slow) / 2
	if budget > 0 && n > budget {
		n = budget
	}
	if n == 0 {
		return nil
	}
	stolen := make([]Pair, n)
	copy(stolen, b.slow[:n])
	remaining := make([]Pair, len(b.slow)-n)
	copy(remaining, b.slow[n:])
	b.slow = remaining
	return stolen
}

// Donate appends externally-supplied redexes (from a successful steal) to
// this bag's slow class.
func (b *Bag) Donate(pairs []Pair) {
	b.mu.Lock()
	b.slow = append(b.slow, pairs...)
	b.mu.Unlock()
}
