// Package instantiate implements the instantiator: materializing a book
// definition's template into live heap nodes and linking the result to a
// caller-supplied port.
package instantiate

import (
	"github.com/hvmcore/hvmc/internal/book"
	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/linker"
	"github.com/hvmcore/hvmc/internal/port"
)

type site struct {
	isRoot bool
	idx    uint64
	slot   uint8
}

// Instantiate allocates k fresh node indices for def's k template nodes,
// translates every port template into a concrete Port, and links the
// template's root to caller. Cost is O(k).
func Instantiate(h *heap.Heap, stripe *heap.Stripe, lk *linker.Linker, def *book.Def, caller port.Port) error {
	idx := make([]uint64, len(def.Nodes))
	for i := range def.Nodes {
		allocated, err := stripe.Alloc()
		if err != nil {
			return err
		}
		idx[i] = allocated
	}

	varSites := make(map[string][]site, 4)
	var rootResolved port.Port
	rootIsVar := false

	resolveDirect := func(tp book.TemplatePort) port.Port {
		switch {
		case tp.IsLocal():
			n := def.Nodes[tp.LocalIdx()]
			switch tp.LocalSite() {
			case book.Principal:
				return port.NewAux(n.Tag, n.Label, idx[tp.LocalIdx()], 0)
			case book.Aux0:
				return port.NewAux(port.VAR, 0, idx[tp.LocalIdx()], 0)
			default: // book.Aux1
				return port.NewAux(port.VAR, 0, idx[tp.LocalIdx()], 1)
			}
		case tp.IsRef():
			return port.New(port.REF, 0, uint64(tp.RefIdx()))
		case tp.IsEra():
			return port.New(port.ERA, 0, 0)
		default: // tp.IsNum()
			return port.New(port.NUM, uint8(tp.NumKind()), tp.NumValue())
		}
	}

	if def.Root.IsVar() {
		rootIsVar = true
		varSites[def.Root.VarName()] = append(varSites[def.Root.VarName()], site{isRoot: true})
	} else {
		rootResolved = resolveDirect(def.Root)
	}

	for i, n := range def.Nodes {
		for slot, tp := range [2]book.TemplatePort{n.Aux0, n.Aux1} {
			if tp.IsVar() {
				varSites[tp.VarName()] = append(varSites[tp.VarName()], site{idx: idx[i], slot: uint8(slot)})
				continue
			}
			h.Set(idx[i], uint8(slot), resolveDirect(tp))
		}
	}

	// varValue holds the resolved value for every variable whose second
	// occurrence lives in a top-level redex side (the `@name = <root> &
	// <redex> & ...` form) rather than in Root or a node's aux port: the
	// address a local site binds through, or caller for a root site.
	varValue := make(map[string]port.Port, len(varSites))

	for name, sites := range varSites {
		switch len(sites) {
		case 1:
			s := sites[0]
			if s.isRoot {
				varValue[name] = caller
			} else {
				varValue[name] = port.NewAux(port.VAR, 0, s.idx, s.slot)
			}
		case 2:
			a, b := sites[0], sites[1]
			switch {
			case !a.isRoot && !b.isRoot:
				h.Set(a.idx, a.slot, port.NewAux(port.VAR, 0, b.idx, b.slot))
				h.Set(b.idx, b.slot, port.NewAux(port.VAR, 0, a.idx, a.slot))
			case a.isRoot:
				lk.Link(port.NewAux(port.VAR, 0, b.idx, b.slot), caller)
			default: // b.isRoot
				lk.Link(port.NewAux(port.VAR, 0, a.idx, a.slot), caller)
			}
		}
	}

	if !rootIsVar {
		lk.Link(rootResolved, caller)
	}

	for _, redex := range def.Redexes {
		lk.Link(resolveSide(redex[0], resolveDirect, varValue), resolveSide(redex[1], resolveDirect, varValue))
	}
	return nil
}

func resolveSide(tp book.TemplatePort, resolveDirect func(book.TemplatePort) port.Port, varValue map[string]port.Port) port.Port {
	if tp.IsVar() {
		return varValue[tp.VarName()]
	}
	return resolveDirect(tp)
}
