// Package netsyntax is a thin recursive-descent reader for the textual net
// grammar, producing book.Def values. It never touches internal/heap,
// internal/rules or internal/scheduler directly — only internal/book,
// internal/numeric and internal/port, the same separation a standalone parser package keeps
// from its evaluator (see DESIGN.md).
//
// Grammar:
//
//	Program  ::= Def*
//	Def      ::= "@" Ident "=" Port ("&" Redex)*
//	Redex    ::= Port "~" Port
//	Port     ::= "*" | Num | "@" Ident | Ident | "[" Port Port "]" |
//	             "{" Port Port "}" | "<" Op Port Port ">" | "?" "<" Port Port ">"
package netsyntax

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hvmcore/hvmc/internal/book"
	"github.com/hvmcore/hvmc/internal/numeric"
	"github.com/hvmcore/hvmc/internal/port"
)

// Parser reads definitions directly off the source string. Unlike the
// teacher's lambda-calculus lexer, ports are not tokenized ahead of the '<'
// that opens an OP2, because the operator itself can be the single
// character '<' or '>' — the opening delimiter and the operator would
// collide in a token stream. Structural characters are therefore consumed
// by hand at each call site instead of through a shared next()/current pair.
type Parser struct {
	src string
	pos int

	nextLabel uint8 // per-definition duplicator label counter, reset in parseDef
	freshVar  int   // counter for synthetic OP2 result-wire variable names
}

// NewParser returns a Parser over the given source text.
func NewParser(src string) *Parser { return &Parser{src: src} }

// Parse reads every definition in the source and freezes them into a Book.
func Parse(src string) (*book.Book, error) {
	p := NewParser(src)
	bl := book.NewBuilder()
	p.skipSpace()
	for !p.atEnd() {
		d, err := p.parseDef()
		if err != nil {
			return nil, err
		}
		bl.Add(d)
		p.skipSpace()
	}
	return bl.Build()
}

// formatFloat renders an F60 payload in the net-syntax literal style:
// "inf"/"-inf"/"NaN" for the special cases, otherwise the shortest decimal
// that re-encodes to the same payload (numeric.FormatF60), so a literal
// like #1.02 prints back as "1.02" rather than its full float64 expansion.
func formatFloat(payload uint64) string {
	f := numeric.DecodeF60(payload)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return numeric.FormatF60(payload)
	}
}

func (p *Parser) atEnd() bool { return p.pos >= len(p.src) }

func (p *Parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}

func (p *Parser) skipSpace() {
	for !p.atEnd() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *Parser) expect(ch byte) error {
	p.skipSpace()
	if p.atEnd() || p.src[p.pos] != ch {
		return errors.Errorf("netsyntax: expected %q at offset %d", ch, p.pos)
	}
	p.pos++
	return nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}
func isIdentByte(b byte) bool { return isLetter(b) || isDigit(b) }

func (p *Parser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	if p.atEnd() || !isLetter(p.src[p.pos]) {
		return "", errors.Errorf("netsyntax: expected identifier at offset %d", p.pos)
	}
	for !p.atEnd() && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

// parseDef reads "@name = <root> & <redex> & ...".
func (p *Parser) parseDef() (*book.Def, error) {
	p.nextLabel = 1
	if err := p.expect('@'); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, errors.Wrap(err, "parsing definition name")
	}
	if err := p.expect('='); err != nil {
		return nil, err
	}

	d := &book.Def{Name: name}
	root, err := p.parsePort(d)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing root of %q", name)
	}
	d.Root = root

	p.skipSpace()
	for p.peek() == '&' {
		p.pos++
		l, err := p.parsePort(d)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing redex of %q", name)
		}
		if err := p.expect('~'); err != nil {
			return nil, err
		}
		r, err := p.parsePort(d)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing redex of %q", name)
		}
		d.Redexes = append(d.Redexes, [2]book.TemplatePort{l, r})
		p.skipSpace()
	}
	return d, nil
}

// newNode appends a fresh template-local node for a compound port and
// returns a TemplatePort addressing its principal.
func (p *Parser) newNode(d *book.Def, tag port.Tag, label uint8, a, b book.TemplatePort) book.TemplatePort {
	idx := len(d.Nodes)
	d.Nodes = append(d.Nodes, book.TemplateNode{Tag: tag, Label: label, Aux0: a, Aux1: b})
	return book.Local(idx, book.Principal)
}

// newOp2Node lowers "<op A B>". The NUM~OP2 / NUM~OP1 rule pair (internal
// rules.operate/operate1) implements partial application: the node's
// principal meets the first operand, aux0 carries the second operand, and
// aux1 is the result wire. The literal syntax supplies both operands
// inline with no dangling principal to attach elsewhere, so the first
// operand is wired here as an immediate redex against the node's principal,
// and a synthetic variable stands in for the result wire — its second
// occurrence is wherever the caller places the TemplatePort this returns.
func (p *Parser) newOp2Node(d *book.Def, op numeric.Op, a, b book.TemplatePort) book.TemplatePort {
	resultVar := fmt.Sprintf("$op2result%d", p.freshVar)
	p.freshVar++

	idx := len(d.Nodes)
	d.Nodes = append(d.Nodes, book.TemplateNode{Tag: port.OP2, Label: uint8(op), Aux0: b, Aux1: book.Var(resultVar)})
	d.Redexes = append(d.Redexes, [2]book.TemplatePort{a, book.Local(idx, book.Principal)})
	return book.Var(resultVar)
}

func (p *Parser) parsePort(d *book.Def) (book.TemplatePort, error) {
	p.skipSpace()
	if p.atEnd() {
		return book.TemplatePort{}, errors.Errorf("netsyntax: unexpected end of input")
	}

	switch ch := p.src[p.pos]; {
	case ch == '*':
		p.pos++
		return book.Era(), nil

	case ch == '#':
		return p.parseNum()

	case ch == '@':
		p.pos++
		name, err := p.parseIdent()
		if err != nil {
			return book.TemplatePort{}, errors.Wrap(err, "parsing reference")
		}
		return book.Ref(name), nil

	case ch == '[':
		p.pos++
		a, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		b, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		if err := p.expect(']'); err != nil {
			return book.TemplatePort{}, err
		}
		return p.newNode(d, port.CTR, 0, a, b), nil

	case ch == '{':
		p.pos++
		a, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		b, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		if err := p.expect('}'); err != nil {
			return book.TemplatePort{}, err
		}
		label := p.nextLabel
		p.nextLabel++
		return p.newNode(d, port.CTR, label, a, b), nil

	case ch == '<':
		p.pos++
		op, err := p.scanOperator()
		if err != nil {
			return book.TemplatePort{}, err
		}
		a, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		b, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		if err := p.expect('>'); err != nil {
			return book.TemplatePort{}, err
		}
		return p.newOp2Node(d, op, a, b), nil

	case ch == '?':
		p.pos++
		if err := p.expect('<'); err != nil {
			return book.TemplatePort{}, err
		}
		a, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		b, err := p.parsePort(d)
		if err != nil {
			return book.TemplatePort{}, err
		}
		if err := p.expect('>'); err != nil {
			return book.TemplatePort{}, err
		}
		return p.newNode(d, port.MAT, 0, a, b), nil

	case isLetter(ch):
		name, err := p.parseIdent()
		if err != nil {
			return book.TemplatePort{}, err
		}
		return book.Var(name), nil

	default:
		return book.TemplatePort{}, errors.Errorf("netsyntax: unexpected character %q at offset %d", ch, p.pos)
	}
}

// scanOperator reads the raw operator lexeme immediately following the '<'
// that opens an OP2 port: a maximal run of non-space characters, longest
// known form first ("f32." prefixed forms before their bare counterparts).
func (p *Parser) scanOperator() (numeric.Op, error) {
	start := p.pos
	for !p.atEnd() && !isSpace(p.src[p.pos]) {
		p.pos++
	}
	lit := p.src[start:p.pos]

	isFloat := strings.HasPrefix(lit, "f32.")
	bare := strings.TrimPrefix(lit, "f32.")

	base, ok := intOpByLiteral[bare]
	if !ok {
		return 0, errors.Errorf("netsyntax: unknown operator %q", lit)
	}
	if isFloat {
		return base.FloatVariant(), nil
	}
	return base, nil
}

var intOpByLiteral = map[string]numeric.Op{
	"+": numeric.OpAdd, "-": numeric.OpSub, "*": numeric.OpMul, "/": numeric.OpDiv,
	"%": numeric.OpMod, "==": numeric.OpEq, "!=": numeric.OpNe, "<": numeric.OpLt,
	">": numeric.OpGt, "<=": numeric.OpLe, ">=": numeric.OpGe,
	"&": numeric.OpAnd, "|": numeric.OpOr, "^": numeric.OpXor,
	"<<": numeric.OpShl, ">>": numeric.OpShr,
}

// parseNum reads "#123", "#-123", "#1.0", "#NaN", "#inf", "#-inf".
func (p *Parser) parseNum() (book.TemplatePort, error) {
	p.pos++ // '#'
	start := p.pos
	for !p.atEnd() && (isDigit(p.src[p.pos]) || p.src[p.pos] == '-' || p.src[p.pos] == '.' || isLetter(p.src[p.pos])) {
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" {
		return book.TemplatePort{}, errors.Errorf("netsyntax: empty numeric literal at offset %d", start)
	}

	switch lit {
	case "NaN":
		return book.Num(numeric.F60, numeric.EncodeF60(math.NaN())), nil
	case "inf":
		return book.Num(numeric.F60, numeric.EncodeF60(math.Inf(1))), nil
	case "-inf":
		return book.Num(numeric.F60, numeric.EncodeF60(math.Inf(-1))), nil
	}

	if strings.Contains(lit, ".") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return book.TemplatePort{}, errors.Wrapf(err, "parsing float literal %q", lit)
		}
		return book.Num(numeric.F60, numeric.EncodeF60(f)), nil
	}

	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return book.TemplatePort{}, errors.Wrapf(err, "parsing integer literal %q", lit)
	}
	if strings.HasPrefix(lit, "-") {
		return book.Num(numeric.I60, numeric.Encode24(v)), nil
	}
	return book.Num(numeric.U60, numeric.Encode24(v)), nil
}

// String renders a Port back into the textual net grammar, for the CLI dump
// subcommand and for trace diagnostics. Compound/local ports cannot be
// rendered without heap access, so this only covers leaf ports.
func String(p port.Port) string {
	switch p.Tag() {
	case port.ERA:
		return "*"
	case port.REF:
		return fmt.Sprintf("@%d", p.RefIndex())
	case port.NUM:
		switch numeric.Kind(p.SubTag()) {
		case numeric.I60:
			return fmt.Sprintf("#%d", numeric.DecodeSigned24(p.Payload()))
		case numeric.F60:
			return fmt.Sprintf("#%s", formatFloat(p.Payload()))
		default: // U60
			return fmt.Sprintf("#%d", numeric.DecodeUnsigned24(p.Payload()))
		}
	default:
		return p.String()
	}
}
