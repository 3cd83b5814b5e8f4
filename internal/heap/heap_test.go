package heap

import (
	"testing"

	"github.com/hvmcore/hvmc/internal/port"
)

func TestStripeAllocIsDistinctAndLocked(t *testing.T) {
	h := New(16)
	s := h.NewStripe()
	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		idx, err := s.Alloc()
		if err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}
		if seen[idx] {
			t.Fatalf("Alloc returned duplicate index %d", idx)
		}
		seen[idx] = true
		if !h.Get(idx, 0).IsLock() || !h.Get(idx, 1).IsLock() {
			t.Errorf("freshly allocated node %d is not Lock-initialized", idx)
		}
	}
}

func TestHeapExhausted(t *testing.T) {
	h := New(2)
	s := h.NewStripe()
	for i := 0; i < 2; i++ {
		if _, err := s.Alloc(); err != nil {
			t.Fatalf("unexpected error allocating node %d: %v", i, err)
		}
	}
	if _, err := s.Alloc(); err == nil {
		t.Fatal("expected HeapExhausted, got nil")
	}
}

func TestFreeAndReuse(t *testing.T) {
	h := New(1)
	s := h.NewStripe()
	idx, _ := s.Alloc()
	h.Free(idx)

	stats := h.Stats()
	if stats.Freed != 1 {
		t.Errorf("Freed = %d, want 1", stats.Freed)
	}

	reused, err := s.Alloc()
	if err != nil {
		t.Fatalf("Alloc after Free failed: %v", err)
	}
	if reused != idx {
		t.Errorf("expected free-list reuse of index %d, got %d", idx, reused)
	}
}

func TestGetSetCASSwap(t *testing.T) {
	h := New(1)
	p1 := port.New(port.ERA, 0, 0)
	p2 := port.New(port.NUM, 0, 7)

	h.Set(0, 0, p1)
	if got := h.Get(0, 0); got != p1 {
		t.Fatalf("Get after Set = %v, want %v", got, p1)
	}

	if !h.CAS(0, 0, p1, p2) {
		t.Fatal("CAS with matching old value should succeed")
	}
	if got := h.Get(0, 0); got != p2 {
		t.Fatalf("Get after CAS = %v, want %v", got, p2)
	}
	if h.CAS(0, 0, p1, p2) {
		t.Fatal("CAS with stale old value should fail")
	}

	prev := h.Swap(0, 0, p1)
	if prev != p2 {
		t.Fatalf("Swap returned %v, want previous value %v", prev, p2)
	}
}
