// Package book implements the immutable definitions book: an in-memory
// mapping from names to prebuilt net templates, built once from
// already-parsed definitions and frozen for the life of the process.
package book

import (
	"fmt"

	"github.com/hvmcore/hvmc/internal/numeric"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/rterror"
)

// Site names which port of a template-local node a TemplatePort addresses.
type Site uint8

const (
	Principal Site = iota
	Aux0
	Aux1
)

type tplKind uint8

const (
	tplLocal tplKind = iota
	tplRef
	tplEra
	tplNum
	tplVar
)

// TemplatePort is a port reference inside an unresolved or resolved
// template: either a template-local node index, a book name (REF), an
// eraser/num constant, or a template variable to be paired at
// instantiation.
type TemplatePort struct {
	kind tplKind

	localIdx int
	site     Site

	refName string
	refIdx  int

	numKind  numeric.Kind
	numValue uint64

	varName string
}

func Local(idx int, site Site) TemplatePort { return TemplatePort{kind: tplLocal, localIdx: idx, site: site} }
func Ref(name string) TemplatePort          { return TemplatePort{kind: tplRef, refName: name} }
func Era() TemplatePort                     { return TemplatePort{kind: tplEra} }
func Num(k numeric.Kind, value uint64) TemplatePort {
	return TemplatePort{kind: tplNum, numKind: k, numValue: value}
}
func Var(name string) TemplatePort { return TemplatePort{kind: tplVar, varName: name} }

// TemplateNode is one of the k prebuilt nodes in a template: a binary agent
// (CTR/OP2/OP1/MAT) with its two auxiliary port templates. label is the
// definition-local duplicator label for CTR nodes (0 means the universal
// tuple label, shared across every definition); Book.Build remaps any
// label > 0 to a book-wide unique value (see DESIGN.md for the
// label-collision resolution).
type TemplateNode struct {
	Tag   port.Tag
	Label uint8
	Aux0  TemplatePort
	Aux1  TemplatePort
}

// Def is one book entry: {name, root, nodes, safe}.
//
// Redexes supports internal/netsyntax: the textual grammar's
// `@name = <root> & <redex> & <redex> ...` form declares initial active
// pairs alongside the root, which the book must instantiate and push as
// pending reductions.
type Def struct {
	Name     string
	Root     TemplatePort
	Nodes    []TemplateNode
	Redexes  [][2]TemplatePort
	Safe     bool

	index int // assigned by Build; book-internal index used by REF ports
}

// Index returns the book-assigned lookup index of this definition (stable
// once the book is built; used to address REF ports for O(1) lookup).
func (d *Def) Index() int { return d.index }

// Book is the immutable name->template mapping.
type Book struct {
	defs  []*Def
	names map[string]int
}

// Def looks up a definition by book index.
func (b *Book) Def(idx int) *Def { return b.defs[idx] }

// Lookup resolves a name to its book index; internal/runtime uses it to find
// the entry definition of a run. REF ports carry the index, not the name.
func (b *Book) Lookup(name string) (int, bool) {
	idx, ok := b.names[name]
	return idx, ok
}

func (b *Book) Len() int { return len(b.defs) }

// Builder accumulates raw definitions (with unresolved REF names and
// definition-local duplicator labels) and freezes them into a Book.
type Builder struct {
	defs []*Def
}

func NewBuilder() *Builder { return &Builder{} }

// Add registers a raw definition. REF names inside it are resolved, and CTR
// labels remapped, during Build.
func (bl *Builder) Add(d *Def) { bl.defs = append(bl.defs, d) }

// Build validates variable balance, returning a BookMalformed error on
// violation, and freezes the book, resolving REF names to indices and
// giving every definition's duplicator labels a book-wide unique
// namespace.
func (bl *Builder) Build() (*Book, error) {
	b := &Book{names: make(map[string]int, len(bl.defs))}
	for i, d := range bl.defs {
		d.index = i
		b.names[d.Name] = i
		b.defs = append(b.defs, d)
	}

	nextLabel := uint8(1)
	for _, d := range b.defs {
		if err := validateVarBalance(d); err != nil {
			return nil, err
		}
		localToGlobal := make(map[uint8]uint8)
		for i := range d.Nodes {
			n := &d.Nodes[i]
			if n.Tag == port.CTR && n.Label != 0 {
				g, ok := localToGlobal[n.Label]
				if !ok {
					g = nextLabel
					nextLabel++
					localToGlobal[n.Label] = g
				}
				n.Label = g
			}
		}
		if err := resolveRefs(b, d); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func resolveRefs(b *Book, d *Def) error {
	resolve := func(tp *TemplatePort) error {
		if tp.kind != tplRef {
			return nil
		}
		idx, ok := b.names[tp.refName]
		if !ok {
			return rterror.BookMalformed(d.Name, fmt.Sprintf("undefined reference @%s", tp.refName))
		}
		tp.refIdx = idx
		return nil
	}
	if err := resolve(&d.Root); err != nil {
		return err
	}
	for i := range d.Nodes {
		if err := resolve(&d.Nodes[i].Aux0); err != nil {
			return err
		}
		if err := resolve(&d.Nodes[i].Aux1); err != nil {
			return err
		}
	}
	for i := range d.Redexes {
		if err := resolve(&d.Redexes[i][0]); err != nil {
			return err
		}
		if err := resolve(&d.Redexes[i][1]); err != nil {
			return err
		}
	}
	return nil
}

// validateVarBalance enforces that every variable name appears exactly
// twice across a definition's ports, detected at book-build time rather
// than at runtime.
func validateVarBalance(d *Def) error {
	counts := map[string]int{}
	var walk func(tp TemplatePort)
	walk = func(tp TemplatePort) {
		if tp.kind == tplVar {
			counts[tp.varName]++
		}
	}
	walk(d.Root)
	for _, n := range d.Nodes {
		walk(n.Aux0)
		walk(n.Aux1)
	}
	for _, r := range d.Redexes {
		walk(r[0])
		walk(r[1])
	}
	for name, c := range counts {
		if c != 2 {
			return rterror.BookMalformed(d.Name, fmt.Sprintf("variable %q appears %d times, want 2", name, c))
		}
	}
	return nil
}

// Accessors used by internal/instantiate to interpret a TemplatePort
// without exposing its private fields.

func (tp TemplatePort) IsLocal() bool { return tp.kind == tplLocal }
func (tp TemplatePort) IsRef() bool   { return tp.kind == tplRef }
func (tp TemplatePort) IsEra() bool   { return tp.kind == tplEra }
func (tp TemplatePort) IsNum() bool   { return tp.kind == tplNum }
func (tp TemplatePort) IsVar() bool   { return tp.kind == tplVar }

func (tp TemplatePort) LocalIdx() int          { return tp.localIdx }
func (tp TemplatePort) LocalSite() Site        { return tp.site }
func (tp TemplatePort) RefIdx() int            { return tp.refIdx }
func (tp TemplatePort) NumKind() numeric.Kind  { return tp.numKind }
func (tp TemplatePort) NumValue() uint64       { return tp.numValue }
func (tp TemplatePort) VarName() string        { return tp.varName }
