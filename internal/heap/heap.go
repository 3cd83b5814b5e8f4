// Package heap implements the fixed-capacity arena of two-port nodes:
// atomic port slots, per-worker bump allocation striped across the arena,
// and a CAS-based global free list for overflow/reclamation. See
// DESIGN.md for the grounding of the sync/atomic + CAS-retry idiom used
// throughout.
package heap

import (
	"sync/atomic"

	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/rterror"
)

type node struct {
	slot0 atomic.Uint64
	slot1 atomic.Uint64
}

// Heap is a fixed-capacity array of nodes shared by every worker in a run.
type Heap struct {
	nodes []node

	// freeHead is a CAS-prepended linked list of freed node indices. A free
	// node's slot0 holds (nextFreeIndex+1); 0 means "end of list".
	freeHead atomic.Uint64

	stripeSize uint64
	bump       atomic.Uint64 // global cursor for stripe assignment

	allocated atomic.Uint64
	freed     atomic.Uint64
}

// Stripe is a worker-local bump allocator over a disjoint slice of the
// heap. A worker exhausts its stripe before pulling from the global free
// list.
type Stripe struct {
	h          *Heap
	next, end  uint64
}

const defaultStripeSize = 4096

// New allocates a heap with room for capacity nodes.
func New(capacity int) *Heap {
	if capacity <= 0 {
		capacity = 1
	}
	return &Heap{
		nodes:      make([]node, capacity),
		stripeSize: defaultStripeSize,
	}
}

// Capacity returns the fixed node capacity of the heap.
func (h *Heap) Capacity() int { return len(h.nodes) }

// Stats is a point-in-time snapshot for internal/telemetry.
type Stats struct {
	Allocated uint64
	Freed     uint64
	Capacity  int
}

func (h *Heap) Stats() Stats {
	return Stats{
		Allocated: h.allocated.Load(),
		Freed:     h.freed.Load(),
		Capacity:  len(h.nodes),
	}
}

// NewStripe creates an empty worker-local stripe over this heap.
func (h *Heap) NewStripe() *Stripe { return &Stripe{h: h} }

// Alloc returns a fresh node index, bump-allocating within the stripe and
// refilling from the heap's stripe cursor or free list on exhaustion.
func (s *Stripe) Alloc() (uint64, error) {
	if s.next < s.end {
		idx := s.next
		s.next++
		s.h.allocated.Add(1)
		s.h.nodes[idx].slot0.Store(uint64(port.Lock))
		s.h.nodes[idx].slot1.Store(uint64(port.Lock))
		return idx, nil
	}
	if idx, ok := s.h.popFree(); ok {
		s.h.allocated.Add(1)
		s.h.nodes[idx].slot0.Store(uint64(port.Lock))
		s.h.nodes[idx].slot1.Store(uint64(port.Lock))
		return idx, nil
	}
	if !s.refillFromBump() {
		return 0, rterror.HeapExhausted(len(s.h.nodes))
	}
	return s.Alloc()
}

func (s *Stripe) refillFromBump() bool {
	for {
		cur := s.h.bump.Load()
		if cur >= uint64(len(s.h.nodes)) {
			return false
		}
		end := cur + s.h.stripeSize
		if end > uint64(len(s.h.nodes)) {
			end = uint64(len(s.h.nodes))
		}
		if s.h.bump.CompareAndSwap(cur, end) {
			s.next, s.end = cur, end
			return true
		}
	}
}

// Free returns a node to the global free list.
func (h *Heap) Free(idx uint64) {
	for {
		head := h.freeHead.Load()
		h.nodes[idx].slot0.Store(head)
		if h.freeHead.CompareAndSwap(head, idx+1) {
			h.freed.Add(1)
			return
		}
	}
}

func (h *Heap) popFree() (uint64, bool) {
	for {
		head := h.freeHead.Load()
		if head == 0 {
			return 0, false
		}
		idx := head - 1
		next := h.nodes[idx].slot0.Load()
		if h.freeHead.CompareAndSwap(head, next) {
			return idx, true
		}
	}
}

// Get reads a port slot with acquire ordering.
func (h *Heap) Get(idx uint64, slot uint8) port.Port {
	if slot == 0 {
		return port.Port(h.nodes[idx].slot0.Load())
	}
	return port.Port(h.nodes[idx].slot1.Load())
}

// Set writes a port slot with release ordering.
func (h *Heap) Set(idx uint64, slot uint8, p port.Port) {
	if slot == 0 {
		h.nodes[idx].slot0.Store(uint64(p))
	} else {
		h.nodes[idx].slot1.Store(uint64(p))
	}
}

// CAS atomically replaces a port slot, acq-rel ordering.
func (h *Heap) CAS(idx uint64, slot uint8, old, new_ port.Port) bool {
	if slot == 0 {
		return h.nodes[idx].slot0.CompareAndSwap(uint64(old), uint64(new_))
	}
	return h.nodes[idx].slot1.CompareAndSwap(uint64(old), uint64(new_))
}

// Swap atomically replaces a port slot and returns the previous value.
func (h *Heap) Swap(idx uint64, slot uint8, new_ port.Port) port.Port {
	if slot == 0 {
		return port.Port(h.nodes[idx].slot0.Swap(uint64(new_)))
	}
	return port.Port(h.nodes[idx].slot1.Swap(uint64(new_)))
}
