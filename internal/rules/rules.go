// Package rules implements the interaction-rule dispatch table: the eight
// primitive rewrites, minus *link* (handled entirely inside internal/linker,
// since Link never pushes a redex whose endpoints are not both already
// principal). Dispatch is a flat switch keyed by tag pair, normalized so
// the pair is tried both ways — a branch-predictor-friendly flat-table
// generalized into a full tag-pair table (see DESIGN.md).
package rules

import (
	"github.com/hvmcore/hvmc/internal/book"
	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/instantiate"
	"github.com/hvmcore/hvmc/internal/linker"
	"github.com/hvmcore/hvmc/internal/numeric"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/redex"
	"github.com/hvmcore/hvmc/internal/rterror"
)

// Kind identifies which rule fired, for internal/telemetry counters.
type Kind uint8

const (
	KindVoid Kind = iota
	KindErase
	KindAnnihilate
	KindCommute
	KindCall
	KindOperate
	KindOperate1
	KindMatch
)

// Engine applies interaction rules against a shared heap and book, pushing
// newly discovered redexes into a worker-local bag through the linker.
type Engine struct {
	Heap    *heap.Heap
	Stripe  *heap.Stripe
	Linker  *linker.Linker
	Book    *book.Book
	Bag     *redex.Bag
	Overflow numeric.OverflowMode
}

// Apply dispatches and executes the rule for active pair (a, b). Both
// ports must already be principal; VAR/RED pairs never reach here because
// internal/linker resolves them before a redex is formed.
func (e *Engine) Apply(a, b port.Port) (Kind, error) {
	ta, tb := a.Tag(), b.Tag()

	switch {
	case ta == port.REF:
		return KindCall, e.call(a, b)
	case tb == port.REF:
		return KindCall, e.call(b, a)

	case ta == port.ERA && tb == port.ERA:
		return KindVoid, nil
	case ta == port.ERA && tb == port.NUM:
		return KindVoid, nil
	case ta == port.NUM && tb == port.ERA:
		return KindVoid, nil

	case ta == port.ERA && b.IsBinary():
		return KindErase, e.erase(b)
	case tb == port.ERA && a.IsBinary():
		return KindErase, e.erase(a)

	case ta == port.NUM && tb == port.OP2:
		return KindOperate, e.operate(a, b)
	case tb == port.NUM && ta == port.OP2:
		return KindOperate, e.operate(b, a)

	case ta == port.NUM && tb == port.OP1:
		return KindOperate1, e.operate1(a, b)
	case tb == port.NUM && ta == port.OP1:
		return KindOperate1, e.operate1(b, a)

	case ta == port.NUM && tb == port.MAT:
		return KindMatch, e.match(a, b)
	case tb == port.NUM && ta == port.MAT:
		return KindMatch, e.match(b, a)

	case ta == port.CTR && tb == port.CTR && a.Label() == b.Label():
		return KindAnnihilate, e.annihilate(a, b)

	// A number meeting a duplicator has nothing of its own to route through
	// the standard 2x2 commute diagram, since NUM carries no aux wires: the
	// value is simply copied onto both of the duplicator's existing aux
	// wires (commute generalized to a nilary operand).
	case ta == port.NUM && tb == port.CTR:
		return KindCommute, e.duplicateNilary(a, b)
	case tb == port.NUM && ta == port.CTR:
		return KindCommute, e.duplicateNilary(b, a)

	case a.IsBinary() && b.IsBinary():
		return KindCommute, e.commute(a, b)

	default:
		return KindVoid, rterror.InvalidInteraction(ta, tb)
	}
}

func (e *Engine) call(ref, x port.Port) error {
	def := e.Book.Def(int(ref.RefIndex()))
	return instantiate.Instantiate(e.Heap, e.Stripe, e.Linker, def, x)
}

// erase frees a binary agent, emitting an eraser onto each of its aux
// neighbors.
func (e *Engine) erase(binary port.Port) error {
	n := binary.NodeIndex()
	a0 := e.Heap.Get(n, 0)
	a1 := e.Heap.Get(n, 1)
	e.Linker.Link(port.New(port.ERA, 0, 0), a0)
	e.Linker.Link(port.New(port.ERA, 0, 0), a1)
	e.Heap.Free(n)
	return nil
}

// annihilate cross-links the aux ports of two same-label CTR agents and
// frees both nodes.
func (e *Engine) annihilate(a, b port.Port) error {
	na, nb := a.NodeIndex(), b.NodeIndex()
	a0, a1 := e.Heap.Get(na, 0), e.Heap.Get(na, 1)
	b0, b1 := e.Heap.Get(nb, 0), e.Heap.Get(nb, 1)
	e.Linker.Link(a0, b0)
	e.Linker.Link(a1, b1)
	e.Heap.Free(na)
	e.Heap.Free(nb)
	return nil
}

// commute expands two different binary agents through each other, the
// standard interaction-combinator duplication diagram: two fresh copies of
// each agent, cross-wired 2x2.
func (e *Engine) commute(a, b port.Port) error {
	na, nb := a.NodeIndex(), b.NodeIndex()
	a0, a1 := e.Heap.Get(na, 0), e.Heap.Get(na, 1)
	b0, b1 := e.Heap.Get(nb, 0), e.Heap.Get(nb, 1)

	ai1, err := e.Stripe.Alloc()
	if err != nil {
		return err
	}
	ai2, err := e.Stripe.Alloc()
	if err != nil {
		return err
	}
	bi1, err := e.Stripe.Alloc()
	if err != nil {
		return err
	}
	bi2, err := e.Stripe.Alloc()
	if err != nil {
		return err
	}

	e.Heap.Set(ai1, 0, port.NewAux(port.VAR, 0, bi1, 0))
	e.Heap.Set(ai1, 1, port.NewAux(port.VAR, 0, bi2, 0))
	e.Heap.Set(ai2, 0, port.NewAux(port.VAR, 0, bi1, 1))
	e.Heap.Set(ai2, 1, port.NewAux(port.VAR, 0, bi2, 1))
	e.Heap.Set(bi1, 0, port.NewAux(port.VAR, 0, ai1, 0))
	e.Heap.Set(bi1, 1, port.NewAux(port.VAR, 0, ai2, 0))
	e.Heap.Set(bi2, 0, port.NewAux(port.VAR, 0, ai1, 1))
	e.Heap.Set(bi2, 1, port.NewAux(port.VAR, 0, ai2, 1))

	e.Linker.Link(a0, port.NewAux(b.Tag(), b.Label(), bi1, 0))
	e.Linker.Link(a1, port.NewAux(b.Tag(), b.Label(), bi2, 0))
	e.Linker.Link(b0, port.NewAux(a.Tag(), a.Label(), ai1, 0))
	e.Linker.Link(b1, port.NewAux(a.Tag(), a.Label(), ai2, 0))

	e.Heap.Free(na)
	e.Heap.Free(nb)
	return nil
}

// duplicateNilary copies value onto both of binary's aux wires and frees
// binary's node. Used for NUM meeting a CTR duplicator, where there is no
// second agent to build the usual commute diagram against.
func (e *Engine) duplicateNilary(value, binary port.Port) error {
	n := binary.NodeIndex()
	a0 := e.Heap.Get(n, 0)
	a1 := e.Heap.Get(n, 1)
	e.Linker.Link(value, a0)
	e.Linker.Link(value, a1)
	e.Heap.Free(n)
	return nil
}

// operate partially applies a numeric operator: NUM ~ OP2 morphs the node
// into OP1 in place. aux1 (the result wire) is fixed for the node's whole
// lifetime and never touched here; aux0 holds the second operand until this
// rule fires, at which point its value has already been read out and the
// slot is free to restash the first operand.
func (e *Engine) operate(num, op2 port.Port) error {
	n := op2.NodeIndex()
	secondOperand := e.Heap.Get(n, 0)
	e.Heap.Set(n, 0, num)
	e.Linker.Link(port.NewAux(port.OP1, op2.SubTag(), n, 0), secondOperand)
	return nil
}

// operate1 computes the primitive operation given the stashed first operand
// (aux0) and the incoming second operand, emitting the NUM result onto the
// result wire (aux1, unchanged since the node was built).
func (e *Engine) operate1(num, op1 port.Port) error {
	n := op1.NodeIndex()
	stashed := e.Heap.Get(n, 0)
	resultWire := e.Heap.Get(n, 1)

	op := numeric.Op(op1.SubTag())
	aKind := numeric.Kind(stashed.SubTag())
	bKind := numeric.Kind(num.SubTag())
	kind, value, err := numeric.Apply(op, aKind, stashed.Payload(), bKind, num.Payload(), e.Overflow)
	if err != nil {
		e.Heap.Free(n)
		return err
	}
	e.Linker.Link(port.New(port.NUM, uint8(kind), value), resultWire)
	e.Heap.Free(n)
	return nil
}

// match dispatches on the scrutinee's value: zero erases both branches
// (aux0 carries no payload in the zero case, so it is released the same
// way the unused branch always is), nonzero erases the zero branch and
// feeds the predecessor into aux1 (the succ-branch continuation). Both
// aux ports are always linked before mat's node is freed, even when the
// branch being released resolves to a VAR/RED twin rather than a
// self-contained value — otherwise the twin's other half is left pointing
// at a freed node. See DESIGN.md for why this binary-agent shape was
// chosen for match.
func (e *Engine) match(num, mat port.Port) error {
	n := mat.NodeIndex()
	zeroBranch := e.Heap.Get(n, 0)
	succBranch := e.Heap.Get(n, 1)

	kind := numeric.Kind(num.SubTag())
	var value int64
	if kind == numeric.I60 {
		value = numeric.DecodeSigned24(num.Payload())
	} else {
		value = int64(numeric.DecodeUnsigned24(num.Payload()))
	}

	if value == 0 {
		e.Linker.Link(port.New(port.ERA, 0, 0), succBranch)
		e.Linker.Link(port.New(port.ERA, 0, 0), zeroBranch)
		e.Heap.Free(n)
		return nil
	}
	e.Linker.Link(port.New(port.ERA, 0, 0), zeroBranch)
	pred := numeric.Encode24(value - 1)
	e.Linker.Link(port.New(port.NUM, num.SubTag(), pred), succBranch)
	e.Heap.Free(n)
	return nil
}
