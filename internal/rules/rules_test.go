package rules

import (
	"testing"

	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/linker"
	"github.com/hvmcore/hvmc/internal/numeric"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/redex"
)

func newEngine(capacity int) (*heap.Heap, *Engine) {
	h := heap.New(capacity)
	stripe := h.NewStripe()
	bag := redex.New()
	lk := linker.New(h, bag)
	return h, &Engine{Heap: h, Stripe: stripe, Linker: lk, Bag: bag, Overflow: numeric.Wrap}
}

func num(v uint64) port.Port { return port.New(port.NUM, uint8(numeric.U60), v) }

func TestApplyEraEraIsVoid(t *testing.T) {
	_, e := newEngine(1)
	kind, err := e.Apply(port.New(port.ERA, 0, 0), port.New(port.ERA, 0, 0))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if kind != KindVoid {
		t.Errorf("kind = %v, want KindVoid", kind)
	}
}

func TestEraseFreesBinaryAndEmitsErasersOnBothAux(t *testing.T) {
	h, e := newEngine(1)
	s := h.NewStripe()
	n, _ := s.Alloc()
	h.Set(n, 0, num(1))
	h.Set(n, 1, num(2))

	if err := e.erase(port.NewAux(port.CTR, 0, n, 0)); err != nil {
		t.Fatalf("erase: %v", err)
	}
	// Both aux values were principal NUM ports, so each erase-link pushed a
	// fresh (ERA, NUM) active pair rather than writing into a heap slot.
	seen := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		pair, ok := e.Bag.Pop()
		if !ok {
			t.Fatalf("expected 2 pushed (ERA, NUM) pairs, got %d", i)
		}
		if pair.A.Tag() != port.ERA && pair.B.Tag() != port.ERA {
			t.Errorf("pushed pair %v has no ERA side", pair)
		}
		seen[pair.A.Payload()] = true
		seen[pair.B.Payload()] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("expected erasers linked against the original aux values 1 and 2, got %v", seen)
	}
}

func TestAnnihilateCrossLinksAuxPorts(t *testing.T) {
	h, e := newEngine(2)
	s := h.NewStripe()
	na, _ := s.Alloc()
	nb, _ := s.Alloc()
	h.Set(na, 0, num(10))
	h.Set(na, 1, num(11))
	h.Set(nb, 0, num(20))
	h.Set(nb, 1, num(21))

	a := port.NewAux(port.CTR, 5, na, 0)
	b := port.NewAux(port.CTR, 5, nb, 0)
	if err := e.annihilate(a, b); err != nil {
		t.Fatalf("annihilate: %v", err)
	}
	// a0/b0 and a1/b1 are both pairs of principal NUM ports, so linking them
	// directly forms new active pairs rather than writing into either slot.
	seen := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		pair, ok := e.Bag.Pop()
		if !ok {
			t.Fatalf("expected 2 pushed pairs, got %d", i)
		}
		seen[pair.A.Payload()] = true
		seen[pair.B.Payload()] = true
	}
	for _, want := range []uint64{10, 20, 11, 21} {
		if !seen[want] {
			t.Errorf("missing cross-linked payload %d among pushed pairs", want)
		}
	}
}

func TestCommuteAllocatesFourNodesAndFreesOriginals(t *testing.T) {
	h, e := newEngine(6)
	s := e.Stripe
	na, _ := s.Alloc()
	nb, _ := s.Alloc()
	h.Set(na, 0, num(1))
	h.Set(na, 1, num(2))
	h.Set(nb, 0, num(3))
	h.Set(nb, 1, num(4))

	before := h.Stats()
	a := port.NewAux(port.CTR, 1, na, 0)
	b := port.NewAux(port.MAT, 0, nb, 0)
	if err := e.commute(a, b); err != nil {
		t.Fatalf("commute: %v", err)
	}
	after := h.Stats()
	if after.Allocated-before.Allocated != 4 {
		t.Errorf("allocated %d fresh nodes, want 4", after.Allocated-before.Allocated)
	}
	if after.Freed-before.Freed != 2 {
		t.Errorf("freed %d nodes, want the two original nodes freed", after.Freed-before.Freed)
	}
}

func TestDuplicateNilaryCopiesValueOntoBothAuxWires(t *testing.T) {
	h, e := newEngine(3)
	s := h.NewStripe()
	n, _ := s.Alloc()
	ra, _ := s.Alloc()
	rb, _ := s.Alloc()
	h.Set(n, 0, port.NewAux(port.VAR, 0, ra, 0))
	h.Set(n, 1, port.NewAux(port.VAR, 0, rb, 0))

	value := num(7)
	if err := e.duplicateNilary(value, port.NewAux(port.CTR, 0, n, 0)); err != nil {
		t.Fatalf("duplicateNilary: %v", err)
	}
	if got := h.Get(ra, 0); got != value {
		t.Errorf("ra.0 = %v, want %v", got, value)
	}
	if got := h.Get(rb, 0); got != value {
		t.Errorf("rb.0 = %v, want %v", got, value)
	}
}

func TestOperateThenOperate1ComputesSum(t *testing.T) {
	h, e := newEngine(2)
	s := h.NewStripe()
	n, _ := s.Alloc()
	result, _ := s.Alloc()
	// aux0 holds the second operand until the node morphs into OP1.
	h.Set(n, 0, num(3))
	h.Set(n, 1, port.NewAux(port.VAR, 0, result, 0))

	op2 := port.NewAux(port.OP2, uint8(numeric.OpAdd), n, 0)
	if err := e.operate(num(2), op2); err != nil {
		t.Fatalf("operate: %v", err)
	}
	op1 := port.NewAux(port.OP1, uint8(numeric.OpAdd), n, 0)
	if err := e.operate1(num(3), op1); err != nil {
		t.Fatalf("operate1: %v", err)
	}
	got := h.Get(result, 0)
	if got.Tag() != port.NUM || numeric.DecodeUnsigned24(got.Payload()) != 5 {
		t.Errorf("result = %v, want NUM(5)", got)
	}
}

func TestMatchZeroErasesBothBranchWires(t *testing.T) {
	h, e := newEngine(3)
	s := h.NewStripe()
	n, _ := s.Alloc()
	zeroBranch, _ := s.Alloc()
	succBranch, _ := s.Alloc()
	h.Set(n, 0, port.NewAux(port.VAR, 0, zeroBranch, 0))
	h.Set(n, 1, port.NewAux(port.VAR, 0, succBranch, 0))

	mat := port.NewAux(port.MAT, 0, n, 0)
	if err := e.match(num(0), mat); err != nil {
		t.Fatalf("match: %v", err)
	}
	if got := h.Get(succBranch, 0); got.Tag() != port.ERA {
		t.Errorf("succBranch = %v, want ERA for a zero scrutinee", got)
	}
	// zeroBranch's slot is the other half of the VAR twin that used to point
	// at mat's now-freed aux0 — it must be overwritten with a live value
	// rather than left dangling into recycled heap memory.
	if got := h.Get(zeroBranch, 0); got.Tag() != port.ERA {
		t.Errorf("zeroBranch = %v, want ERA rather than a dangling twin reference", got)
	}
}

func TestMatchNonzeroRoutesPredecessorToAux1(t *testing.T) {
	h, e := newEngine(3)
	s := h.NewStripe()
	n, _ := s.Alloc()
	zeroBranch, _ := s.Alloc()
	succBranch, _ := s.Alloc()
	h.Set(n, 0, port.NewAux(port.VAR, 0, zeroBranch, 0))
	h.Set(n, 1, port.NewAux(port.VAR, 0, succBranch, 0))

	mat := port.NewAux(port.MAT, 0, n, 0)
	if err := e.match(num(3), mat); err != nil {
		t.Fatalf("match: %v", err)
	}
	if got := h.Get(zeroBranch, 0); got.Tag() != port.ERA {
		t.Errorf("zeroBranch = %v, want ERA for a nonzero scrutinee", got)
	}
	if got := h.Get(succBranch, 0); got.Tag() != port.NUM || numeric.DecodeUnsigned24(got.Payload()) != 2 {
		t.Errorf("succBranch = %v, want NUM(2) (pred of 3)", got)
	}
}
