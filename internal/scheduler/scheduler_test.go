package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/linker"
	"github.com/hvmcore/hvmc/internal/netinst"
	"github.com/hvmcore/hvmc/internal/numeric"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/redex"
	"github.com/hvmcore/hvmc/internal/rules"
)

func newWorker(h *heap.Heap) *netinst.Net {
	stripe := h.NewStripe()
	bag := redex.New()
	lk := linker.New(h, bag)
	eng := &rules.Engine{Heap: h, Stripe: stripe, Linker: lk, Bag: bag, Overflow: numeric.Wrap}
	return netinst.New(h, eng)
}

func TestSchedulerDetectsQuiescenceWithNoWork(t *testing.T) {
	h := heap.New(8)
	workers := []*netinst.Net{newWorker(h), newWorker(h)}
	s := New(hclog.NewNullLogger(), Config{Workers: 2}, workers)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Stats().Interactions != 0 {
		t.Errorf("interactions = %d, want 0", s.Stats().Interactions)
	}
}

func TestSchedulerDrainsSingleWorkerRedex(t *testing.T) {
	h := heap.New(8)
	w := newWorker(h)
	w.Bag.Push(port.New(port.ERA, 0, 0), port.New(port.ERA, 0, 0))

	s := New(hclog.NewNullLogger(), Config{Workers: 1}, []*netinst.Net{w})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.Stats().Interactions; got != 1 {
		t.Errorf("interactions = %d, want 1", got)
	}
}

func TestSchedulerStealingCompletesCommuteAcrossWorkers(t *testing.T) {
	// Three full stripes: one for the test's own setup stripe and one for
	// each worker's commute allocations.
	h := heap.New(3 * 4096)
	w0 := newWorker(h)
	w1 := newWorker(h)

	stripe := h.NewStripe()
	// Two independent CTR~CTR commute redexes, both classified Slow by
	// redex.ClassOf — StealHalf only donates when it can split off at least
	// one item, so a single-item bag (see redex.Bag.StealHalf) would never
	// actually exercise stealing.
	for i := 0; i < 2; i++ {
		na, _ := stripe.Alloc()
		nb, _ := stripe.Alloc()
		h.Set(na, 0, port.New(port.ERA, 0, 0))
		h.Set(na, 1, port.New(port.ERA, 0, 0))
		h.Set(nb, 0, port.New(port.ERA, 0, 0))
		h.Set(nb, 1, port.New(port.ERA, 0, 0))
		w0.Bag.Push(port.NewAux(port.CTR, 1, na, 0), port.NewAux(port.CTR, 2, nb, 0))
	}

	s := New(hclog.NewNullLogger(), Config{Workers: 2}, []*netinst.Net{w0, w1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Both commute interactions happen exactly once, regardless of whether
	// worker1 managed to steal one before worker0 drained its own bag. Each
	// commute delivers an eraser to each of its four fresh nodes (4 erase
	// interactions), and those erasers meet pairwise on the four internal
	// wires (4 void interactions): 2 * (1 + 4 + 4) = 18.
	if got := s.Stats().Interactions; got != 18 {
		t.Errorf("interactions = %d, want 18", got)
	}
}
