package rawval_test

import (
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-rewind/rawval"
)

func TestCanonicalizeMasksHighBits(t *testing.T) {
	tests := []struct {
		name  string
		raw   uint64
		width uint8
		want  uint64
	}{
		{"i32 with stale high bits", 0xdeadbeef_00000015, 32, 0x15},
		{"i32 clean", 42, 32, 42},
		{"i64 untouched", 0xdeadbeef_00000015, 64, 0xdeadbeef_00000015},
		{"full 32-bit payload", 0xffffffff_ffffffff, 32, 0xffffffff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rawval.Canonicalize(tt.raw, tt.width); got != tt.want {
				t.Errorf("Canonicalize(%#x, %d) = %#x, want %#x", tt.raw, tt.width, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	raws := []uint64{0, 1, 0xffffffff, 0xdeadbeef_cafebabe, math.MaxUint64}
	widths := []uint8{32, 64}

	for _, raw := range raws {
		for _, w := range widths {
			once := rawval.Canonicalize(raw, w)
			twice := rawval.Canonicalize(once, w)
			if once != twice {
				t.Errorf("Canonicalize(%#x, %d) not idempotent: %#x != %#x", raw, w, once, twice)
			}
		}
	}
}

func TestMakeDropsUnionPadding(t *testing.T) {
	// Two captures of the same logical i32 must compare equal even when the
	// storage slot carried different leftover high bits.
	a := rawval.Make(rawval.KindI32, 0xaaaaaaaa_00000007)
	b := rawval.Make(rawval.KindI32, 0xbbbbbbbb_00000007)

	if !a.Equal(b) {
		t.Errorf("canonical values differ: %v vs %v", a, b)
	}
	if a.Bits() != 7 {
		t.Errorf("Bits() = %#x, want 7", a.Bits())
	}
}

func TestFloatRoundTrip(t *testing.T) {
	f32 := rawval.F32(3.5)
	if f32.Float32() != 3.5 {
		t.Errorf("F32 round trip = %g", f32.Float32())
	}
	if f32.Bits()>>32 != 0 {
		t.Errorf("F32 high bits not zero: %#x", f32.Bits())
	}

	f64 := rawval.F64(-0.25)
	if f64.Float64() != -0.25 {
		t.Errorf("F64 round trip = %g", f64.Float64())
	}

	nan := rawval.F32(float32(math.NaN()))
	if !math.IsNaN(float64(nan.Float32())) {
		t.Error("NaN payload lost")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		vt   api.ValueType
		want rawval.Kind
	}{
		{api.ValueTypeI32, rawval.KindI32},
		{api.ValueTypeI64, rawval.KindI64},
		{api.ValueTypeF32, rawval.KindF32},
		{api.ValueTypeF64, rawval.KindF64},
		{api.ValueTypeExternref, rawval.KindOpaque},
	}
	for _, tt := range tests {
		if got := rawval.KindOf(tt.vt); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.vt, got, tt.want)
		}
	}
}

func TestCaptureStackDeepCopies(t *testing.T) {
	stack := []uint64{0xff00000000000001, 21, 99}
	types := []api.ValueType{api.ValueTypeI32, api.ValueTypeI64}

	vals := rawval.CaptureStack(stack, types)
	if len(vals) != 2 {
		t.Fatalf("len = %d", len(vals))
	}
	if vals[0].Bits() != 1 {
		t.Errorf("arg 0 not canonicalized: %#x", vals[0].Bits())
	}

	// Mutating the live stack must not affect captured values.
	stack[1] = 0
	if vals[1].Bits() != 21 {
		t.Errorf("captured value aliased the stack: %d", vals[1].Bits())
	}
}

func TestToStack(t *testing.T) {
	stack := make([]uint64, 4)
	rawval.ToStack([]rawval.Value{rawval.I32(42), rawval.I64(7)}, stack)
	if stack[0] != 42 || stack[1] != 7 {
		t.Errorf("stack = %v", stack[:2])
	}
}

func TestWidth(t *testing.T) {
	if rawval.KindI32.Width() != 32 || rawval.KindF32.Width() != 32 {
		t.Error("32-bit kinds misreport width")
	}
	if rawval.KindI64.Width() != 64 || rawval.KindF64.Width() != 64 || rawval.KindOpaque.Width() != 64 {
		t.Error("64-bit kinds misreport width")
	}
}
