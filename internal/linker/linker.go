// Package linker implements the connect-two-ports operation: the central,
// lock-free Link primitive used by every interaction rule and by the
// instantiator to attach a freshly built template to its caller.
package linker

import (
	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/redex"
)

// Linker connects ports against a shared heap, pushing newly discovered
// active pairs into a worker-local bag.
type Linker struct {
	Heap *heap.Heap
	Bag  *redex.Bag
}

func New(h *heap.Heap, b *redex.Bag) *Linker { return &Linker{Heap: h, Bag: b} }

// isIndirection reports whether a port addresses a specific (node, slot)
// location rather than a node's principal — true for VAR (an open wire end)
// and RED (a transient redirect). Both are followed identically by Link;
// RED only ever appears as a value discovered mid-link, never written
// deliberately by a rule.
func isIndirection(t port.Tag) bool { return t == port.VAR || t == port.RED }

// Link connects two ports.
//
//  1. If neither is VAR/RED (both are principal references, or one of
//     REF/NUM/ERA), push (a, b) as a redex.
//  2. If exactly one is VAR/RED, atomically swap the target slot with the
//     other port. If the slot held something other than the uninitialized
//     sentinel, a concurrent writer got there first; forward by relinking
//     the discovered value against the other port.
//  3. If both are VAR/RED, bind both directions; if either swap discovers
//     a concurrent bind, forward using the discovered value instead of the
//     (now stale) port this call was about to write.
//
// Every branch either binds a slot (monotone: Lock -> real value, once) or
// recurses on a value one step closer to a principal port, so Link always
// terminates.
func (lk *Linker) Link(a, b port.Port) {
	aInd := isIndirection(a.Tag())
	bInd := isIndirection(b.Tag())

	switch {
	case aInd && bInd:
		lk.linkBoth(a, b)
	case aInd:
		lk.linkOne(a, b)
	case bInd:
		lk.linkOne(b, a)
	default:
		lk.Bag.Push(a, b)
	}
}

func (lk *Linker) linkOne(indirect, other port.Port) {
	prev := lk.Heap.Swap(indirect.NodeIndex(), indirect.Slot(), other)
	if prev.IsLock() {
		return
	}
	// A pre-established twin pair stores each half's address in the other.
	// If prev's own target still points back at the slot we just wrote,
	// this delivery already completed the bind in one hop; forwarding
	// through it would bounce indefinitely between the two halves instead
	// of recognizing the pair as resolved.
	if isIndirection(prev.Tag()) {
		mirror := lk.Heap.Get(prev.NodeIndex(), prev.Slot())
		if mirror == indirect {
			return
		}
	}
	lk.Link(prev, other)
}

func (lk *Linker) linkBoth(a, b port.Port) {
	prevA := lk.Heap.Swap(a.NodeIndex(), a.Slot(), b)
	prevB := lk.Heap.Swap(b.NodeIndex(), b.Slot(), a)
	switch {
	case prevA.IsLock() && prevB.IsLock():
		return
	case prevA == b && prevB == a:
		// a and b were already mutual twins before this call (e.g. annihilate
		// relinking two pre-existing cross-node twin pairs): both swaps were
		// idempotent, so there is nothing left to forward.
		return
	case !prevA.IsLock() && prevB.IsLock():
		lk.Link(prevA, b)
	case prevA.IsLock() && !prevB.IsLock():
		lk.Link(a, prevB)
	default:
		lk.Link(prevA, prevB)
	}
}
