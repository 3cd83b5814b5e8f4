// Package numeric implements the tagged 24-bit numeric payload and the
// operator table used by the operate/operate1 interaction rules.
package numeric

import (
	"math"

	"github.com/hvmcore/hvmc/internal/rterror"
)

// Kind distinguishes the numeric sub-tags carried in a NUM port's SubTag.
type Kind uint8

const (
	U60 Kind = iota
	I60
	F60
)

// Op is an operator code, also carried in a port's SubTag when the tag is
// OP2 or OP1. Codes 0-15 are the integer operators; 16-31 are their
// float-typed counterparts (the "f32." prefix forms in net syntax).
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr

	opFloatBase = 16
)

func (o Op) IsFloat() bool { return o >= opFloatBase }

// FloatVariant returns the float-typed counterpart of an integer operator.
func (o Op) FloatVariant() Op {
	if o.IsFloat() {
		return o
	}
	return o + opFloatBase
}

// IntVariant strips the float flag, returning the base operator.
func (o Op) IntVariant() Op {
	if o.IsFloat() {
		return o - opFloatBase
	}
	return o
}

const (
	valueBits = 24
	valueMask = (uint64(1) << valueBits) - 1
	signBit   = uint64(1) << (valueBits - 1)
)

// Encode24 truncates a signed integer into the 24-bit two's-complement
// payload used by I60/U60.
func Encode24(v int64) uint64 { return uint64(v) & valueMask }

// DecodeSigned24 sign-extends a 24-bit two's-complement payload.
func DecodeSigned24(p uint64) int64 {
	v := p & valueMask
	if v&signBit != 0 {
		return int64(v) - int64(valueMask) - 1
	}
	return int64(v)
}

// DecodeUnsigned24 reads the payload as an unsigned 24-bit value, wrapping.
func DecodeUnsigned24(p uint64) uint64 { return p & valueMask }

// OverflowMode controls what happens when an integer operation's exact
// result does not fit in 24 bits.
type OverflowMode uint8

const (
	Wrap OverflowMode = iota
	Trap
)

// Apply performs one primitive numeric operation (the operate1 rule) given
// two NUM payload/subtag pairs and an operator.
func Apply(op Op, aKind Kind, aPayload uint64, bKind Kind, bPayload uint64, mode OverflowMode) (resultKind Kind, resultPayload uint64, err error) {
	if op.IsFloat() || aKind == F60 || bKind == F60 {
		return applyFloat(op.FloatVariant(), aPayload, bPayload)
	}
	return applyInt(op, aKind, aPayload, bKind, bPayload, mode)
}

func applyInt(op Op, aKind Kind, a uint64, bKind Kind, b uint64, mode OverflowMode) (Kind, uint64, error) {
	signed := aKind == I60 || bKind == I60
	resultKind := U60
	if signed {
		resultKind = I60
	}

	ai := DecodeSigned24(a)
	bi := DecodeSigned24(b)
	au := DecodeUnsigned24(a)
	bu := DecodeUnsigned24(b)

	comparison := func(cond bool) (Kind, uint64, error) {
		if cond {
			return U60, 1, nil
		}
		return U60, 0, nil
	}

	switch op {
	case OpAdd:
		return wrapOrTrap(resultKind, ai+bi, au+bu, signed, mode)
	case OpSub:
		return wrapOrTrap(resultKind, ai-bi, au-bu, signed, mode)
	case OpMul:
		return wrapOrTrap(resultKind, ai*bi, au*bu, signed, mode)
	case OpDiv:
		if bu == 0 && bi == 0 {
			return 0, 0, rterror.DivisionByZero()
		}
		if signed {
			return wrapOrTrap(resultKind, ai/bi, 0, signed, mode)
		}
		return wrapOrTrap(resultKind, 0, au/bu, signed, mode)
	case OpMod:
		if bu == 0 && bi == 0 {
			return 0, 0, rterror.DivisionByZero()
		}
		if signed {
			return wrapOrTrap(resultKind, ai%bi, 0, signed, mode)
		}
		return wrapOrTrap(resultKind, 0, au%bu, signed, mode)
	case OpEq:
		return comparison(ai == bi)
	case OpNe:
		return comparison(ai != bi)
	case OpLt:
		if signed {
			return comparison(ai < bi)
		}
		return comparison(au < bu)
	case OpGt:
		if signed {
			return comparison(ai > bi)
		}
		return comparison(au > bu)
	case OpLe:
		if signed {
			return comparison(ai <= bi)
		}
		return comparison(au <= bu)
	case OpGe:
		if signed {
			return comparison(ai >= bi)
		}
		return comparison(au >= bu)
	case OpAnd:
		return wrapOrTrap(resultKind, 0, au&bu, false, mode)
	case OpOr:
		return wrapOrTrap(resultKind, 0, au|bu, false, mode)
	case OpXor:
		return wrapOrTrap(resultKind, 0, au^bu, false, mode)
	case OpShl:
		return wrapOrTrap(resultKind, 0, au<<(bu&63), false, mode)
	case OpShr:
		return wrapOrTrap(resultKind, 0, au>>(bu&63), false, mode)
	default:
		return 0, 0, rterror.InvalidOperator(uint8(op))
	}
}

func wrapOrTrap(kind Kind, signedResult int64, unsignedResult uint64, signed bool, mode OverflowMode) (Kind, uint64, error) {
	if signed {
		fits := signedResult == DecodeSigned24(Encode24(signedResult))
		if !fits && mode == Trap {
			return 0, 0, rterror.NumericOverflow()
		}
		return kind, Encode24(signedResult), nil
	}
	fits := unsignedResult&^valueMask == 0
	if !fits && mode == Trap {
		return 0, 0, rterror.NumericOverflow()
	}
	return kind, unsignedResult & valueMask, nil
}

// applyFloat implements the reduced-mantissa F60 arithmetic using full
// float64 math internally and re-encoding the result with EncodeF60, which
// rounds to nearest, per the bit-layout resolution in
// internal/numeric/float60.go.
func applyFloat(op Op, a, b uint64) (Kind, uint64, error) {
	af := DecodeF60(a)
	bf := DecodeF60(b)

	comparison := func(cond bool) (Kind, uint64, error) {
		if cond {
			return U60, 1, nil
		}
		return U60, 0, nil
	}

	switch op.IntVariant() {
	case OpAdd:
		return F60, EncodeF60(af + bf), nil
	case OpSub:
		return F60, EncodeF60(af - bf), nil
	case OpMul:
		return F60, EncodeF60(af * bf), nil
	case OpDiv:
		return F60, EncodeF60(af / bf), nil
	case OpMod:
		return F60, EncodeF60(math.Mod(af, bf)), nil
	case OpEq:
		return comparison(!math.IsNaN(af) && !math.IsNaN(bf) && af == bf)
	case OpNe:
		return comparison(math.IsNaN(af) || math.IsNaN(bf) || af != bf)
	case OpLt:
		return comparison(!math.IsNaN(af) && !math.IsNaN(bf) && af < bf)
	case OpGt:
		return comparison(!math.IsNaN(af) && !math.IsNaN(bf) && af > bf)
	case OpLe:
		return comparison(!math.IsNaN(af) && !math.IsNaN(bf) && af <= bf)
	case OpGe:
		return comparison(!math.IsNaN(af) && !math.IsNaN(bf) && af >= bf)
	default:
		return 0, 0, rterror.InvalidOperator(uint8(op))
	}
}
