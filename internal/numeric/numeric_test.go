package numeric

import (
	"math"
	"testing"
)

func TestApplyIntArithmetic(t *testing.T) {
	cases := []struct {
		name string
		op   Op
		a, b int64
		want int64
	}{
		{"add", OpAdd, 2, 3, 5},
		{"sub", OpSub, 10, 4, 6},
		{"mul", OpMul, 6, 7, 42},
		{"identity add zero", OpAdd, 41, 0, 41},
		{"identity mul one", OpMul, 41, 1, 41},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			kind, payload, err := Apply(c.op, U60, Encode24(c.a), U60, Encode24(c.b), Wrap)
			if err != nil {
				t.Fatalf("Apply returned error: %v", err)
			}
			if kind != U60 {
				t.Errorf("kind = %v, want U60", kind)
			}
			if got := int64(DecodeUnsigned24(payload)); got != c.want {
				t.Errorf("result = %d, want %d", got, c.want)
			}
		})
	}
}

func TestApplyDivisionByZero(t *testing.T) {
	_, _, err := Apply(OpDiv, U60, Encode24(5), U60, Encode24(0), Wrap)
	if err == nil {
		t.Fatal("expected DivisionByZero error")
	}
}

func TestApplyDivIdentity(t *testing.T) {
	_, payload, err := Apply(OpDiv, U60, Encode24(7), U60, Encode24(7), Wrap)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if DecodeUnsigned24(payload) != 1 {
		t.Errorf("x/x = %d, want 1", DecodeUnsigned24(payload))
	}
}

func TestApplySignedOverflowWrapVsTrap(t *testing.T) {
	// I60 max positive is 2^23-1; adding 1 overflows the 24-bit range.
	maxI60 := int64(1<<23) - 1
	_, payload, err := Apply(OpAdd, I60, Encode24(maxI60), I60, Encode24(1), Wrap)
	if err != nil {
		t.Fatalf("wrap mode returned error: %v", err)
	}
	if got := DecodeSigned24(payload); got != -(1 << 23) {
		t.Errorf("wrapped overflow = %d, want %d", got, -(1 << 23))
	}

	_, _, err = Apply(OpAdd, I60, Encode24(maxI60), I60, Encode24(1), Trap)
	if err == nil {
		t.Fatal("trap mode should report NumericOverflow")
	}
}

func TestApplyFloatArithmetic(t *testing.T) {
	kind, payload, err := Apply(OpAdd.FloatVariant(), F60, EncodeF60(0.0), F60, EncodeF60(1.02), Wrap)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if kind != F60 {
		t.Fatalf("kind = %v, want F60", kind)
	}
	got := DecodeF60(payload)
	if math.Abs(got-1.02) > 1e-2 {
		t.Errorf("0.0 + 1.02 = %v, want ~1.02 (within F60 precision)", got)
	}
}

func TestApplyFloatNaNComparison(t *testing.T) {
	kind, payload, err := Apply(OpEq.FloatVariant(), F60, EncodeF60(math.NaN()), F60, EncodeF60(math.NaN()), Wrap)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if kind != U60 {
		t.Fatalf("comparison result kind = %v, want U60", kind)
	}
	if DecodeUnsigned24(payload) != 0 {
		t.Errorf("NaN == NaN should be false (0), got %d", DecodeUnsigned24(payload))
	}
}

func TestApplyFloatDivisionByZeroIsInf(t *testing.T) {
	_, payload, err := Apply(OpDiv.FloatVariant(), F60, EncodeF60(1.0), F60, EncodeF60(0.0), Wrap)
	if err != nil {
		t.Fatalf("float division by zero should not be a fatal error: %v", err)
	}
	if got := DecodeF60(payload); !math.IsInf(got, 1) {
		t.Errorf("1.0 / 0.0 = %v, want +Inf", got)
	}
}

func TestEncodeDecodeSigned24RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1<<23 - 1, -(1 << 23)} {
		if got := DecodeSigned24(Encode24(v)); got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}
