package runtime

import (
	"context"
	"testing"

	"github.com/hvmcore/hvmc/internal/config"
	"github.com/hvmcore/hvmc/internal/numeric"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HeapSize = 1024
	cfg.Workers = 1
	return cfg
}

func evalMain(t *testing.T, source string) *Runtime {
	t.Helper()
	rt, err := NewFromSource(testConfig(), source, "main")
	if err != nil {
		t.Fatalf("NewFromSource: %v", err)
	}
	if err := rt.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rt
}

func TestArithmetic(t *testing.T) {
	rt := evalMain(t, `@main = x & x ~ <+ #2 #3>`)
	if got := rt.String(); got != "#5" {
		t.Errorf("root = %q, want #5", got)
	}
}

func TestFloatNaNComparisonIsFalse(t *testing.T) {
	rt := evalMain(t, `@main = x & x ~ <f32.== #NaN #NaN>`)
	if got := rt.String(); got != "#0" {
		t.Errorf("root = %q, want #0", got)
	}
}

func TestFloatParsing(t *testing.T) {
	rt := evalMain(t, `@main = x & x ~ <f32.+ #0.0 #1.02>`)
	if got := rt.String(); got != "#1.02" {
		t.Errorf("root = %q, want #1.02", got)
	}
}

func TestAnnihilatePairReturnsHeap(t *testing.T) {
	rt := evalMain(t, `@main = x & [a b] ~ [a b] & x ~ *`)
	if got := rt.String(); got != "*" {
		t.Errorf("root = %q, want *", got)
	}
	stats := rt.Heap.Stats()
	if stats.Allocated != stats.Freed {
		t.Errorf("heap not fully reclaimed: allocated=%d freed=%d", stats.Allocated, stats.Freed)
	}
}

func TestInfDivision(t *testing.T) {
	rt := evalMain(t, `@main = x & x ~ <f32./ #1.0 #0.0>`)
	if got := rt.String(); got != "#inf" {
		t.Errorf("root = %q, want #inf", got)
	}
}

func TestDuplicator(t *testing.T) {
	// r1/r2 are each shared between the result tuple and the inline
	// duplicator node, so the duplicator's principal (meeting #7) copies
	// the literal onto both of the tuple's aux ports.
	rt := evalMain(t, `@main = x & x ~ [r1 r2] & {r1 r2} ~ #7`)

	root := rt.RootValue()
	if root.Tag().String() != "CTR" {
		t.Fatalf("root tag = %v, want CTR", root.Tag())
	}
	n := root.NodeIndex()
	a0 := rt.Heap.Get(n, 0)
	a1 := rt.Heap.Get(n, 1)
	if a0.Tag().String() != "NUM" || a1.Tag().String() != "NUM" {
		t.Fatalf("aux ports not resolved to NUM: a0=%v a1=%v", a0, a1)
	}
	if numeric.DecodeUnsigned24(a0.Payload()) != 7 || numeric.DecodeUnsigned24(a1.Payload()) != 7 {
		t.Errorf("aux ports = %v, %v, want both #7", a0, a1)
	}
}

func TestUndefinedEntry(t *testing.T) {
	_, err := NewFromSource(testConfig(), `@main = x & x ~ *`, "missing")
	if err == nil {
		t.Fatal("expected error for undefined entry definition")
	}
}
